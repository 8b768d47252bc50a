package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/api"
	"github.com/BaSui01/debatehub/internal/database"
	"github.com/BaSui01/debatehub/rag"
	"github.com/BaSui01/debatehub/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// 👥 人设
// =============================================================================

// PersonaSource 返回当前生效的人设表，热加载后返回新表
type PersonaSource func() *persona.Registry

// PersonaHandler GET /api/v1/personas
type PersonaHandler struct {
	source PersonaSource
	logger *zap.Logger
}

// NewPersonaHandler 创建人设处理器
func NewPersonaHandler(source PersonaSource, logger *zap.Logger) *PersonaHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonaHandler{source: source, logger: logger.With(zap.String("handler", "persona"))}
}

// HandleList 列出所有人设（不含提示词）
// @Summary 人设列表
// @Tags 人设
// @Produce json
// @Success 200 {object} Response
// @Router /api/v1/personas [get]
func (h *PersonaHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	registry := h.source()
	if registry == nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "persona registry not loaded"), h.logger)
		return
	}
	all := registry.All()
	out := make([]api.PersonaInfo, 0, len(all))
	for _, p := range all {
		out = append(out, api.NewPersonaInfo(p))
	}
	WriteSuccess(w, api.PersonaListResponse{Personas: out})
}

// =============================================================================
// 📄 文档入库
// =============================================================================

// DocumentIngestor 文档入库能力，rag.Ingestor 实现
type DocumentIngestor interface {
	Ingest(ctx context.Context, doc rag.SourceDocument) (rag.IngestResult, error)
}

// DocumentHandler POST /api/v1/documents
type DocumentHandler struct {
	ingestor DocumentIngestor
	logger   *zap.Logger
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(ingestor DocumentIngestor, logger *zap.Logger) *DocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentHandler{ingestor: ingestor, logger: logger.With(zap.String("handler", "document"))}
}

// HandleIngest 切块、向量化并写入向量库。未提供 id 时自动生成。
// @Summary 文档入库
// @Tags 文档
// @Accept json
// @Produce json
// @Param request body api.IngestDocumentRequest true "文档"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Router /api/v1/documents [post]
func (h *DocumentHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.IngestDocumentRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	res, err := h.ingestor.Ingest(r.Context(), rag.SourceDocument{
		ID:       req.ID,
		Title:    req.Title,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		if _, ok := types.AsError(err); !ok {
			err = types.NewError(types.ErrUpstreamError, "document ingestion failed").WithCause(err).WithRetryable(true)
		}
		WriteError(w, err, h.logger)
		return
	}
	h.logger.Info("document ingested", zap.String("document_id", res.DocumentID), zap.Int("chunks", res.Chunks))
	WriteCreated(w, res)
}

// =============================================================================
// 🗃️ 归档查询
// =============================================================================

// TranscriptArchive 归档读取能力，database.TranscriptRepository 实现
type TranscriptArchive interface {
	LoadTranscript(ctx context.Context, id string) (database.Transcript, error)
	ListSessions(ctx context.Context, limit, offset int) ([]database.SessionRecord, error)
}

// ArchiveHandler 已归档会话的只读端点
type ArchiveHandler struct {
	archive TranscriptArchive
	logger  *zap.Logger
}

// NewArchiveHandler 创建归档处理器
func NewArchiveHandler(archive TranscriptArchive, logger *zap.Logger) *ArchiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveHandler{archive: archive, logger: logger.With(zap.String("handler", "archive"))}
}

// HandleList 处理 GET /api/v1/transcripts?limit=&offset=
func (h *ArchiveHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	records, err := h.archive.ListSessions(r.Context(), limit, offset)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	out := make([]api.ArchivedSession, 0, len(records))
	for _, rec := range records {
		out = append(out, archivedSession(rec))
	}
	WriteSuccess(w, api.ArchiveListResponse{Sessions: out, Limit: limit, Offset: offset})
}

// HandleGet 处理 GET /api/v1/transcripts/{id}
func (h *ArchiveHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "session id is required"), h.logger)
		return
	}
	tr, err := h.archive.LoadTranscript(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.ArchivedTranscriptResponse{
		Session: archivedSession(tr.Session),
		Turns:   tr.Turns,
	})
}

func archivedSession(rec database.SessionRecord) api.ArchivedSession {
	return api.ArchivedSession{
		ID:          rec.ID,
		Objective:   rec.Objective,
		Mode:        rec.Mode,
		Active:      rec.Active,
		CloseReason: rec.CloseReason,
		TurnCount:   rec.TurnCount,
		StartedAt:   rec.StartedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, types.Errorf(types.ErrInvalidRequest, "%s must be a non-negative integer", key)
	}
	return v, nil
}

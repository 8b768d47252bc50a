package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/debatehub/agent/conversation"
	"github.com/BaSui01/debatehub/api"
	"github.com/BaSui01/debatehub/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🗣️ 会话 Handler
// =============================================================================

// SessionHandler 会话生命周期端点：创建、发言、推进、自动运行、停止与重置。
// 自动运行在后台协程中执行，实时发言通过 StreamHandler 推送。
type SessionHandler struct {
	manager *conversation.Manager
	logger  *zap.Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu   sync.Mutex
	runs map[string]*backgroundRun
	wg   sync.WaitGroup
}

type backgroundRun struct {
	cancel context.CancelFunc
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(manager *conversation.Manager, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionHandler{
		manager:    manager,
		logger:     logger.With(zap.String("handler", "session")),
		baseCtx:    ctx,
		cancelBase: cancel,
		runs:       make(map[string]*backgroundRun),
	}
}

// Register 注册会话路由
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sessions", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/sessions", h.HandleList)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.HandleStatus)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.HandleReset)
	mux.HandleFunc("POST /api/v1/sessions/{id}/messages", h.HandleSubmit)
	mux.HandleFunc("POST /api/v1/sessions/{id}/turns", h.HandleAdvance)
	mux.HandleFunc("POST /api/v1/sessions/{id}/run", h.HandleRun)
	mux.HandleFunc("POST /api/v1/sessions/{id}/stop", h.HandleStop)
	mux.HandleFunc("GET /api/v1/sessions/{id}/transcript", h.HandleTranscript)
}

// HandleCreate 处理 POST /api/v1/sessions
// @Summary 创建会议
// @Tags 会话
// @Accept json
// @Produce json
// @Param request body api.StartSessionRequest true "会议目标与组织背景"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Router /api/v1/sessions [post]
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.StartSessionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	_, status, err := h.manager.Create(r.Context(), req.StartRequest())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteCreated(w, status)
}

// HandleList 处理 GET /api/v1/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions := h.manager.List()
	WriteSuccess(w, api.SessionListResponse{Sessions: sessions, Total: len(sessions)})
}

// HandleStatus 处理 GET /api/v1/sessions/{id}
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	status, err := h.manager.Status(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, status)
}

// HandleSubmit 处理 POST /api/v1/sessions/{id}/messages
// @Summary 提交人类发言
// @Tags 会话
// @Accept json
// @Produce json
// @Param id path string true "会话 ID"
// @Param request body api.SubmitMessageRequest true "发言内容"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /api/v1/sessions/{id}/messages [post]
func (h *SessionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.SubmitMessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	ctx := types.WithSessionID(r.Context(), id)
	turn, err := h.manager.Submit(ctx, id, req.Text)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	status, err := h.manager.Status(ctx, id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.SubmitMessageResponse{Turn: turn, Status: status})
}

// HandleAdvance 处理 POST /api/v1/sessions/{id}/turns，推进一轮
// @Summary 推进一轮
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Response
// @Failure 409 {object} Response
// @Router /api/v1/sessions/{id}/turns [post]
func (h *SessionHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if h.Running(id) {
		WriteError(w, runInProgress(id), h.logger)
		return
	}

	ctx := types.WithSessionID(r.Context(), id)
	res, err := h.manager.Advance(ctx, id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	status, err := h.manager.Status(ctx, id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.AdvanceResponse{Round: res, Status: status})
}

// HandleRun 处理 POST /api/v1/sessions/{id}/run，后台自动运行直到会话结束。
// 请求体可省略。
// @Summary 自动运行
// @Tags 会话
// @Accept json
// @Produce json
// @Param id path string true "会话 ID"
// @Param request body api.RunRequest false "运行参数"
// @Success 202 {object} Response
// @Failure 409 {object} Response
// @Router /api/v1/sessions/{id}/run [post]
func (h *SessionHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req api.RunRequest
	if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}
	if req.MaxRounds < 0 {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "max_rounds must be non-negative"), h.logger)
		return
	}

	status, err := h.manager.Status(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	switch {
	case !status.Started:
		WriteError(w, types.Errorf(types.ErrSessionNotStarted, "session %s has not started", id), h.logger)
		return
	case !status.Active:
		WriteError(w, types.Errorf(types.ErrSessionInactive, "session %s is closed", id), h.logger)
		return
	}

	if err := h.startRun(id, req.MaxRounds); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteAccepted(w, api.RunAcceptedResponse{
		SessionID: id,
		Running:   true,
		Stream:    "/api/v1/sessions/" + id + "/stream",
	})
}

// HandleStop 处理 POST /api/v1/sessions/{id}/stop，结束会议（不做总结）
func (h *SessionHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	h.cancelRun(id)

	ctx := types.WithSessionID(r.Context(), id)
	if err := h.manager.Stop(ctx, id); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	status, err := h.manager.Status(ctx, id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, status)
}

// HandleReset 处理 DELETE /api/v1/sessions/{id}
func (h *SessionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	h.cancelRun(id)

	if err := h.manager.Reset(types.WithSessionID(r.Context(), id), id); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTranscript 处理 GET /api/v1/sessions/{id}/transcript
func (h *SessionHandler) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	turns, summary, err := h.manager.Transcript(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.TranscriptResponse{SessionID: id, Turns: turns, Summary: summary})
}

// =============================================================================
// 🔄 后台运行管理
// =============================================================================

// Running 会话是否有进行中的自动运行
func (h *SessionHandler) Running(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.runs[id]
	return ok
}

func (h *SessionHandler) startRun(id string, maxRounds int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.baseCtx.Err() != nil {
		return types.NewError(types.ErrServiceUnavailable, "server is shutting down")
	}
	if _, busy := h.runs[id]; busy {
		return runInProgress(id)
	}

	ctx, cancel := context.WithCancel(types.WithSessionID(h.baseCtx, id))
	br := &backgroundRun{cancel: cancel}
	h.runs[id] = br
	h.wg.Add(1)
	go h.run(ctx, br, id, maxRounds)
	return nil
}

func (h *SessionHandler) run(ctx context.Context, br *backgroundRun, id string, maxRounds int) {
	defer h.wg.Done()
	defer h.finishRun(id, br)

	start := time.Now()
	report, err := h.manager.Run(ctx, id, conversation.RunOptions{MaxRounds: maxRounds})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("automated run failed",
			zap.String("session_id", id),
			zap.Int("rounds", report.Rounds),
			zap.Error(err))
		return
	}
	h.logger.Info("automated run ended",
		zap.String("session_id", id),
		zap.Int("rounds", report.Rounds),
		zap.Bool("closed", report.Closed),
		zap.String("close_reason", string(report.CloseReason)),
		zap.Duration("duration", time.Since(start)))
}

func (h *SessionHandler) cancelRun(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if br, ok := h.runs[id]; ok {
		br.cancel()
		delete(h.runs, id)
	}
}

// finishRun 只清理自己的登记，不影响同一会话随后启动的新运行
func (h *SessionHandler) finishRun(id string, br *backgroundRun) {
	br.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.runs[id] == br {
		delete(h.runs, id)
	}
}

// Shutdown 取消所有后台运行并等待退出
func (h *SessionHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.cancelBase()
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *SessionHandler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "session id is required"), h.logger)
		return "", false
	}
	return id, true
}

func runInProgress(id string) *types.Error {
	return types.Errorf(types.ErrInvalidRequest, "automated run in progress for session %s", id).
		WithHTTPStatus(http.StatusConflict)
}

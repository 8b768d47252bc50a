package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/internal/tlsutil"
)

// =============================================================================
// 🗄️ Qdrant 向量库（REST）
// =============================================================================

// QdrantConfig Qdrant 连接与集合设置。
// 点 ID 必须是 UUID，由 Document.ID 派生；原始 ID、正文与元数据放在 payload 里。
type QdrantConfig struct {
	Host       string        `yaml:"host" json:"host" env:"HOST"`
	Port       int           `yaml:"port" json:"port" env:"PORT"`
	BaseURL    string        `yaml:"base_url" json:"base_url,omitempty" env:"BASE_URL"`
	APIKey     string        `yaml:"api_key" json:"-" env:"API_KEY"`
	Collection string        `yaml:"collection" json:"collection" env:"COLLECTION"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout,omitempty" env:"TIMEOUT"`

	AutoCreateCollection bool   `yaml:"auto_create_collection" json:"auto_create_collection,omitempty" env:"AUTO_CREATE_COLLECTION"`
	Distance             string `yaml:"distance" json:"distance,omitempty"` // Cosine / Dot / Euclid
	VectorSize           int    `yaml:"vector_size" json:"vector_size,omitempty"`
}

// endpoint BaseURL 优先，否则由 Host/Port 拼出
func (c QdrantConfig) endpoint() string {
	if u := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"); u != "" {
		return u
	}
	host, port := c.Host, c.Port
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 6333
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// ErrCollectionRequired 未配置集合名
var ErrCollectionRequired = errors.New("qdrant collection is required")

// QdrantError 非 2xx 响应
type QdrantError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *QdrantError) Error() string {
	return fmt.Sprintf("qdrant %s %s: status=%d: %s", e.Method, e.Path, e.Status, e.Body)
}

// upsertBatch 单次请求最多写入的点数
const upsertBatch = 128

var qdrantNamespace = uuid.MustParse("6f1c2a9e-3b7d-4e52-9a0c-8d4e1f7b2c63")

func qdrantPointID(docID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(docID)).String()
}

type qdrantPayload struct {
	DocID    string         `json:"doc_id,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float64     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantHit struct {
	ID      any           `json:"id"`
	Score   float64       `json:"score"`
	Payload qdrantPayload `json:"payload"`
}

// QdrantStore 以 Qdrant 实现 VectorStore
type QdrantStore struct {
	cfg     QdrantConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	ensureMu sync.Mutex
	ensured  bool
}

var _ VectorStore = (*QdrantStore)(nil)

func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	return &QdrantStore{
		cfg:     cfg,
		baseURL: cfg.endpoint(),
		client:  tlsutil.HTTPClient(cfg.Timeout, 4),
		logger:  logger.With(zap.String("component", "qdrant_store"), zap.String("collection", cfg.Collection)),
	}
}

// EnsureCollection 建集合；已存在（409）视为成功。失败时下次调用会重试。
func (s *QdrantStore) EnsureCollection(ctx context.Context, vectorSize int) error {
	if s.cfg.Collection == "" {
		return ErrCollectionRequired
	}
	if vectorSize <= 0 {
		return fmt.Errorf("qdrant vector size must be > 0, got %d", vectorSize)
	}

	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensured {
		return nil
	}
	body := map[string]any{"vectors": map[string]any{"size": vectorSize, "distance": s.cfg.Distance}}
	_, err := qdrantCall[json.RawMessage](ctx, s, http.MethodPut, s.collectionPath(""), body)
	var qe *QdrantError
	if err != nil && !(errors.As(err, &qe) && qe.Status == http.StatusConflict) {
		return err
	}
	s.ensured = true
	s.logger.Info("qdrant collection ready", zap.Int("vector_size", vectorSize))
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if s.cfg.Collection == "" {
		return ErrCollectionRequired
	}

	dim := s.cfg.VectorSize
	points := make([]qdrantPoint, len(docs))
	for i, doc := range docs {
		switch {
		case doc.ID == "":
			return fmt.Errorf("document[%d] has empty id", i)
		case len(doc.Embedding) == 0:
			return fmt.Errorf("document %s has no embedding", doc.ID)
		}
		if dim == 0 {
			dim = len(doc.Embedding)
		}
		if len(doc.Embedding) != dim {
			return fmt.Errorf("document %s: embedding dimension mismatch: got %d, want %d", doc.ID, len(doc.Embedding), dim)
		}
		points[i] = qdrantPoint{
			ID:      qdrantPointID(doc.ID),
			Vector:  doc.Embedding,
			Payload: qdrantPayload{DocID: doc.ID, Content: doc.Content, Metadata: doc.Metadata},
		}
	}

	if s.cfg.AutoCreateCollection {
		if err := s.EnsureCollection(ctx, dim); err != nil {
			return err
		}
	}

	for start := 0; start < len(points); start += upsertBatch {
		batch := points[start:min(start+upsertBatch, len(points))]
		req := map[string]any{"points": batch}
		if _, err := qdrantCall[json.RawMessage](ctx, s, http.MethodPut, s.collectionPath("/points?wait=true"), req); err != nil {
			return fmt.Errorf("upsert points %d-%d: %w", start, start+len(batch)-1, err)
		}
	}
	s.logger.Debug("qdrant upsert", zap.Int("count", len(points)))
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float64, topK int) ([]VectorSearchResult, error) {
	if s.cfg.Collection == "" {
		return nil, ErrCollectionRequired
	}
	if topK <= 0 {
		return []VectorSearchResult{}, nil
	}
	if len(queryEmbedding) == 0 {
		return nil, errors.New("query embedding is required")
	}

	req := map[string]any{"vector": queryEmbedding, "limit": topK, "with_payload": true}
	hits, err := qdrantCall[[]qdrantHit](ctx, s, http.MethodPost, s.collectionPath("/points/search"), req)
	if err != nil {
		return nil, err
	}

	out := make([]VectorSearchResult, len(hits))
	for i, h := range hits {
		id := h.Payload.DocID
		if id == "" {
			id = fmt.Sprint(h.ID)
		}
		out[i] = VectorSearchResult{
			Document: Document{ID: id, Content: h.Payload.Content, Metadata: h.Payload.Metadata},
			Score:    h.Score,
		}
	}
	return out, nil
}

// Delete 空白 ID 跳过
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if s.cfg.Collection == "" {
		return ErrCollectionRequired
	}
	points := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) != "" {
			points = append(points, qdrantPointID(id))
		}
	}
	if len(points) == 0 {
		return nil
	}
	_, err := qdrantCall[json.RawMessage](ctx, s, http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"points": points})
	return err
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	if s.cfg.Collection == "" {
		return 0, ErrCollectionRequired
	}
	res, err := qdrantCall[struct {
		Count int `json:"count"`
	}](ctx, s, http.MethodPost, s.collectionPath("/points/count"), map[string]any{"exact": true})
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Ping 就绪探针
func (s *QdrantStore) Ping(ctx context.Context) error {
	_, err := qdrantCall[json.RawMessage](ctx, s, http.MethodGet, "/collections", nil)
	return err
}

func (s *QdrantStore) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(s.cfg.Collection) + suffix
}

// qdrantCall 发请求并解出响应里的 result 字段
func qdrantCall[T any](ctx context.Context, s *QdrantStore, method, path string, in any) (T, error) {
	var zero T
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return zero, fmt.Errorf("encode qdrant request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return zero, &QdrantError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var envelope struct {
		Result T `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil && !errors.Is(err, io.EOF) {
		return zero, fmt.Errorf("decode qdrant %s response: %w", path, err)
	}
	return envelope.Result, nil
}

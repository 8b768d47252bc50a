package rag

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/llm/embedding"
	"github.com/BaSui01/debatehub/types"
)

// ScoredText 是检索结果：一段文本及其相似度。
type ScoredText struct {
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source,omitempty"`
}

// Retriever 把查询向量化后在向量库中搜索。
type Retriever struct {
	embedder embedding.Provider
	store    VectorStore
	logger   *zap.Logger
}

// NewRetriever 创建检索器
func NewRetriever(embedder embedding.Provider, store VectorStore, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		logger:   logger.With(zap.String("component", "retriever")),
	}
}

// Retrieve 返回按相似度降序排列的至多 topK 条结果。
// 任何下游失败都以 RETRIEVAL_FAILURE 返回。
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]ScoredText, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, types.NewError(types.ErrEmptyInput, "retrieval query is empty")
	}
	if topK <= 0 {
		return nil, nil
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, types.NewError(types.ErrRetrievalFailure, "embed query").WithCause(err)
	}
	results, err := r.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, types.NewError(types.ErrRetrievalFailure, "vector search").WithCause(err)
	}

	out := make([]ScoredText, 0, len(results))
	for _, res := range results {
		if strings.TrimSpace(res.Document.Content) == "" {
			continue
		}
		source, _ := res.Document.Metadata["source"].(string)
		out = append(out, ScoredText{
			Text:   res.Document.Content,
			Score:  res.Score,
			Source: source,
		})
	}

	r.logger.Debug("retrieval completed",
		zap.Int("requested", topK),
		zap.Int("returned", len(out)))
	return out, nil
}

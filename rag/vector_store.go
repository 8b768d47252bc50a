package rag

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Document 向量库中的一条记录，通常是一个分块
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float64      `json:"-"`
}

// VectorSearchResult Score 越大越相关
type VectorSearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// VectorStore 检索与入库共用的向量库抽象
type VectorStore interface {
	Upsert(ctx context.Context, docs []Document) error
	// Search 按相似度降序，至多 topK 条
	Search(ctx context.Context, queryEmbedding []float64, topK int) ([]VectorSearchResult, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
}

// InMemoryVectorStore 进程内暴力余弦检索。
// 同分时按首次写入顺序，重复 Upsert 不改变位置。
type InMemoryVectorStore struct {
	mu     sync.RWMutex
	docs   []Document
	index  map[string]int
	logger *zap.Logger
}

var _ VectorStore = (*InMemoryVectorStore)(nil)

func NewInMemoryVectorStore(logger *zap.Logger) *InMemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorStore{
		index:  make(map[string]int),
		logger: logger.With(zap.String("component", "memory_vector_store")),
	}
}

func (s *InMemoryVectorStore) Upsert(_ context.Context, docs []Document) error {
	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document has empty id")
		}
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document %s has no embedding", doc.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		if i, ok := s.index[doc.ID]; ok {
			s.docs[i] = doc
			continue
		}
		s.index[doc.ID] = len(s.docs)
		s.docs = append(s.docs, doc)
	}
	s.logger.Debug("documents upserted", zap.Int("count", len(docs)), zap.Int("total", len(s.docs)))
	return nil
}

func (s *InMemoryVectorStore) Search(_ context.Context, queryEmbedding []float64, topK int) ([]VectorSearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 || len(s.docs) == 0 {
		return []VectorSearchResult{}, nil
	}

	results := make([]VectorSearchResult, len(s.docs))
	for i, doc := range s.docs {
		results[i] = VectorSearchResult{Document: doc, Score: cosineSimilarity(queryEmbedding, doc.Embedding)}
	}
	slices.SortStableFunc(results, func(a, b VectorSearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return results[:min(topK, len(results))], nil
}

func (s *InMemoryVectorStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			delete(s.index, id)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	s.docs = slices.DeleteFunc(s.docs, func(d Document) bool {
		_, ok := s.index[d.ID]
		return !ok
	})
	for i, d := range s.docs {
		s.index[d.ID] = i
	}
	return nil
}

func (s *InMemoryVectorStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// cosineSimilarity 维度不同或含零向量时为 0
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i, x := range a {
		dot += x * b[i]
		na += x * x
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/debatehub/llm/embedding"
	"github.com/BaSui01/debatehub/types"
)

// SourceDocument 待入库的参考文档
type SourceDocument struct {
	ID       string         `json:"id"`
	Title    string         `json:"title,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IngestResult 入库结果
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
}

// IngestorConfig 入库管线配置
type IngestorConfig struct {
	Chunking    ChunkingConfig `yaml:"chunking" json:"chunking" env:"CHUNKING"`
	BatchSize   int            `yaml:"batch_size" json:"batch_size" env:"BATCH_SIZE"`
	Concurrency int            `yaml:"concurrency" json:"concurrency" env:"CONCURRENCY"`
}

// DefaultIngestorConfig 默认入库配置
func DefaultIngestorConfig() IngestorConfig {
	return IngestorConfig{
		Chunking:    DefaultChunkingConfig(),
		BatchSize:   32,
		Concurrency: 4,
	}
}

// Ingestor 分块 → 向量化 → 写入向量库。
type Ingestor struct {
	chunker  *Chunker
	embedder embedding.Provider
	store    VectorStore
	cfg      IngestorConfig
	logger   *zap.Logger
}

// NewIngestor 创建入库管线
func NewIngestor(cfg IngestorConfig, embedder embedding.Provider, store VectorStore, logger *zap.Logger) (*Ingestor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultIngestorConfig().BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	chunker, err := NewChunker(cfg.Chunking)
	if err != nil {
		return nil, err
	}
	return &Ingestor{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "ingestor")),
	}, nil
}

// ChunkID 返回文档第 index 个块的 ID。
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s#%d", docID, index)
}

// Ingest 入库单个文档。同一 ID 再次入库会覆盖同序号的块。
func (in *Ingestor) Ingest(ctx context.Context, doc SourceDocument) (IngestResult, error) {
	doc.ID = strings.TrimSpace(doc.ID)
	if doc.ID == "" {
		return IngestResult{}, types.NewError(types.ErrInvalidRequest, "document id is required")
	}
	chunks := in.chunker.Split(doc.Content)
	if len(chunks) == 0 {
		return IngestResult{}, types.NewError(types.ErrEmptyInput, "document content is empty")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors := make([][]float64, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Concurrency)
	for lo := 0; lo < len(texts); lo += in.cfg.BatchSize {
		hi := min(lo+in.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vecs, err := in.embedder.EmbedDocuments(gctx, texts[lo:hi])
			if err != nil {
				return err
			}
			if len(vecs) != hi-lo {
				return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), hi-lo)
			}
			copy(vectors[lo:hi], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IngestResult{}, types.NewError(types.ErrUpstreamError, "embed document chunks").WithCause(err)
	}

	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		meta := map[string]any{
			"source":      doc.ID,
			"chunk_index": c.Index,
		}
		if doc.Title != "" {
			meta["title"] = doc.Title
		}
		for k, v := range doc.Metadata {
			if _, reserved := meta[k]; !reserved {
				meta[k] = v
			}
		}
		docs[i] = Document{
			ID:        ChunkID(doc.ID, c.Index),
			Content:   c.Content,
			Metadata:  meta,
			Embedding: vectors[i],
		}
	}
	if err := in.store.Upsert(ctx, docs); err != nil {
		return IngestResult{}, types.NewError(types.ErrUpstreamError, "store document chunks").WithCause(err)
	}

	in.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(docs)))
	return IngestResult{DocumentID: doc.ID, Chunks: len(docs)}, nil
}

package embedding

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/types"
)

// Provider 定义统一的嵌入提供者接口.
type Provider interface {
	// EmbedQuery 嵌入单个查询.
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
	// EmbedDocuments 嵌入多个文档，返回顺序与输入一致.
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)
	// Name 返回提供者名称.
	Name() string
	// Dimensions 返回向量维度.
	Dimensions() int
}

// Config 嵌入提供者配置
type Config struct {
	APIKey     string `yaml:"api_key" json:"api_key" env:"API_KEY"`
	BaseURL    string `yaml:"base_url" json:"base_url" env:"BASE_URL"`
	Model      string `yaml:"model" json:"model" env:"MODEL"`
	Dimensions int    `yaml:"dimensions" json:"dimensions" env:"DIMENSIONS"`
	MaxBatch   int    `yaml:"max_batch" json:"max_batch" env:"MAX_BATCH"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		MaxBatch:   64,
	}
}

// OpenAIProvider 调用 OpenAI 兼容的 /embeddings 接口.
type OpenAIProvider struct {
	client *openai.Client
	cfg    Config
	logger *zap.Logger
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider 创建嵌入提供者
func NewOpenAIProvider(cfg Config, httpClient *http.Client, logger *zap.Logger) *OpenAIProvider {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = def.Dimensions
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = def.MaxBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := openai.NewClient(opts...)

	return &OpenAIProvider{
		client: &client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "embedding")),
	}
}

func (p *OpenAIProvider) Name() string    { return "openai" }
func (p *OpenAIProvider) Dimensions() int { return p.cfg.Dimensions }

func (p *OpenAIProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if query == "" {
		return nil, types.NewError(types.ErrEmptyInput, "empty embedding query")
	}
	vecs, err := p.call(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments splits large inputs into MaxBatch-sized calls.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if len(documents) == 0 {
		return nil, types.NewError(types.ErrEmptyInput, "no documents to embed")
	}

	out := make([][]float64, len(documents))
	for i := 0; i < len(documents); i += p.cfg.MaxBatch {
		end := min(i+p.cfg.MaxBatch, len(documents))
		vecs, err := p.call(ctx, documents[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", i, end, err)
		}
		copy(out[i:], vecs)
	}
	return out, nil
}

func (p *OpenAIProvider) call(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          p.cfg.Model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(p.cfg.Dimensions)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "embedding request failed").
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}

	vecs := make([][]float64, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= int64(len(texts)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch size %d", item.Index, len(texts))
		}
		vecs[item.Index] = item.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return vecs, nil
}

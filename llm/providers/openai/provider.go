package openai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/llm"
	"github.com/BaSui01/debatehub/llm/providers"
	"github.com/BaSui01/debatehub/types"
)

const defaultModel = "gpt-4o-mini"

// Provider 通过 Chat Completions API 实现 llm.Provider。
type Provider struct {
	client *openai.Client
	cfg    providers.Endpoint
	name   string
	logger *zap.Logger
}

var _ llm.Provider = (*Provider)(nil)

// New 创建 Provider。SDK 自带的重试被关闭，重试由 llm.ResilientProvider 统一负责。
func New(cfg providers.Endpoint, httpClient *http.Client, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Model = cfg.ModelOr(defaultModel)
	name := cfg.Name()

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openai.NewClient(opts...)
	return &Provider{
		client: &client,
		cfg:    cfg,
		name:   name,
		logger: logger.With(zap.String("component", "llm_provider"), zap.String("provider", name)),
	}
}

func (p *Provider) Name() string { return p.name }

// Completion 发起一次 chat completion 请求。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "completion needs at least one message").WithProvider(p.name)
	}

	params := openai.ChatCompletionNewParams{
		Model:    p.model(req),
		Messages: convertMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(float64(req.Temperature))
	}
	if req.ResponseFormat == llm.ResponseFormatJSONObject {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		p.logger.Debug("chat completion failed", zap.String("model", p.model(req)), zap.Error(err))
		return nil, p.mapError(err)
	}

	out := &llm.ChatResponse{
		ID:        resp.ID,
		Provider:  p.name,
		Model:     resp.Model,
		CreatedAt: time.Unix(resp.Created, 0),
		Usage: llm.ChatUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        int(c.Index),
			FinishReason: string(c.FinishReason),
			Message:      types.Message{Role: types.RoleAssistant, Content: c.Message.Content},
		})
	}
	return out, nil
}

// HealthCheck 通过列出模型探测端点可用性。
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.client.Models.List(ctx)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, p.mapError(err)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *Provider) model(req *llm.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.cfg.Model
}

func (p *Provider) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return providers.MapHTTPError(apiErr.StatusCode, apiErr.Error(), p.name).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrUpstreamTimeout, "openai request timed out").
			WithCause(err).WithRetryable(true).WithProvider(p.name)
	}
	return types.NewError(types.ErrUpstreamError, "openai request failed").
		WithCause(err).WithRetryable(true).WithProvider(p.name)
}

func convertMessages(msgs []types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			msg := openai.UserMessage(m.Content)
			if m.Name != "" {
				msg.OfUser.Name = openai.String(m.Name)
			}
			out = append(out, msg)
		}
	}
	return out
}

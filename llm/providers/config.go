package providers

import "time"

// Endpoint 一个 OpenAI 兼容端点（OpenAI、DeepSeek、Qwen、本地 vLLM 均可）
type Endpoint struct {
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Organization string        `json:"organization,omitempty" yaml:"organization,omitempty"`
	Model        string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Label 出现在日志、指标与错误里，默认 "openai"
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Name 未设置 Label 时为 "openai"
func (e Endpoint) Name() string {
	if e.Label == "" {
		return "openai"
	}
	return e.Label
}

// ModelOr 未设置 Model 时返回 fallback
func (e Endpoint) ModelOr(fallback string) string {
	if e.Model == "" {
		return fallback
	}
	return e.Model
}

// =============================================================================
// 📦 DebateHub 默认配置
// =============================================================================
// 提供所有配置项的合理默认值，以及配置到各组件参数的转换
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/debatehub/agent/conversation"
	"github.com/BaSui01/debatehub/internal/cache"
	"github.com/BaSui01/debatehub/internal/database"
	"github.com/BaSui01/debatehub/internal/server"
	"github.com/BaSui01/debatehub/internal/telemetry"
	"github.com/BaSui01/debatehub/llm"
	"github.com/BaSui01/debatehub/llm/circuitbreaker"
	"github.com/BaSui01/debatehub/llm/embedding"
	"github.com/BaSui01/debatehub/llm/providers"
	"github.com/BaSui01/debatehub/llm/retry"
	"github.com/BaSui01/debatehub/rag"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       server.DefaultConfig(),
		LLM:          DefaultLLMConfig(),
		Embedding:    embedding.DefaultConfig(),
		Orchestrator: conversation.DefaultConfig(),
		Retrieval:    DefaultRetrievalConfig(),
		Personas:     DefaultPersonasConfig(),
		Redis:        DefaultRedisConfig(),
		Database:     database.DefaultConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    telemetry.DefaultConfig(),
		Auth:         DefaultAuthConfig(),
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:            "openai",
		Model:               "gpt-4o-mini",
		Timeout:             30 * time.Second,
		MaxRetries:          2,
		InitialDelay:        500 * time.Millisecond,
		MaxDelay:            5 * time.Second,
		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
		RequestsPerSecond:   10,
		Burst:               10,
	}
}

// DefaultRetrievalConfig 默认使用进程内向量库
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Store: "memory",
		Qdrant: rag.QdrantConfig{
			Host:                 "localhost",
			Port:                 6333,
			Collection:           "debatehub_documents",
			Timeout:              30 * time.Second,
			AutoCreateCollection: true,
		},
		Ingest: rag.DefaultIngestorConfig(),
	}
}

// DefaultPersonasConfig 返回默认人设配置
func DefaultPersonasConfig() PersonasConfig {
	return PersonasConfig{
		WatchInterval: 5 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置（未启用）
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled: false,
		Config:  cache.DefaultConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultAuthConfig 返回默认认证配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		RateLimitRPS:   20,
		RateLimitBurst: 40,
	}
}

// =============================================================================
// 🔄 组件参数转换
// =============================================================================

// ProviderConfig 转换为 OpenAI 兼容 Provider 配置
func (c LLMConfig) ProviderConfig() providers.Endpoint {
	return providers.Endpoint{
		APIKey:       c.APIKey,
		BaseURL:      c.BaseURL,
		Organization: c.Organization,
		Model:        c.Model,
		Timeout:      c.Timeout,
		Label:        c.Provider,
	}
}

// ResilienceConfig 转换为弹性 Provider 配置
func (c LLMConfig) ResilienceConfig() *llm.ResilientProviderConfig {
	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = c.MaxRetries
	if c.InitialDelay > 0 {
		policy.InitialDelay = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		policy.MaxDelay = c.MaxDelay
	}

	breaker := circuitbreaker.DefaultConfig()
	breaker.Threshold = c.BreakerThreshold
	if c.BreakerResetTimeout > 0 {
		breaker.ResetTimeout = c.BreakerResetTimeout
	}

	return &llm.ResilientProviderConfig{
		CallTimeout:       c.Timeout,
		RetryPolicy:       policy,
		CircuitBreaker:    breaker,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
	}
}

// EmbeddingConfig 返回向量化配置，未单独配置的端点与密钥沿用 LLM 的
func (c *Config) EmbeddingConfig() embedding.Config {
	out := c.Embedding
	if out.BaseURL == "" {
		out.BaseURL = c.LLM.BaseURL
	}
	if out.APIKey == "" {
		out.APIKey = c.LLM.APIKey
	}
	return out
}

// AuthEnabled 是否启用任一认证方式
func (c *Config) AuthEnabled() bool {
	return len(c.Auth.APIKeys) > 0 || c.Auth.JWT.Enabled()
}

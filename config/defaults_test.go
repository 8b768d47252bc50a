package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEmpty(t, cfg.Server.Addr)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEmpty(t, cfg.Embedding.Model)
	assert.Equal(t, 20, cfg.Orchestrator.MaxTurns)
	assert.Equal(t, "memory", cfg.Retrieval.Store)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Database.Enabled())
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.False(t, cfg.AuthEnabled())

	require.NoError(t, cfg.Validate(), "defaults must be valid")
}

// --- Individual Default*Config functions ---

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 5, cfg.BreakerThreshold)
}

func TestDefaultRetrievalConfig(t *testing.T) {
	cfg := DefaultRetrievalConfig()
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 6333, cfg.Qdrant.Port)
	assert.Equal(t, "debatehub_documents", cfg.Qdrant.Collection)
	assert.True(t, cfg.Qdrant.AutoCreateCollection)
	assert.NoError(t, cfg.Ingest.Chunking.Validate())
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, "debatehub:", cfg.KeyPrefix)
	assert.Equal(t, 24*time.Hour, cfg.SnapshotTTL)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
}

func TestDefaultAuthConfig(t *testing.T) {
	cfg := DefaultAuthConfig()
	assert.Empty(t, cfg.APIKeys)
	assert.False(t, cfg.JWT.Enabled())
	assert.Equal(t, 20.0, cfg.RateLimitRPS)
	assert.Equal(t, 40, cfg.RateLimitBurst)
}

// --- 组件参数转换 ---

func TestLLMConfig_ProviderConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	cfg.BaseURL = "http://localhost:11434/v1"
	cfg.APIKey = "sk-test"
	cfg.Organization = "org-1"

	pc := cfg.ProviderConfig()
	assert.Equal(t, "http://localhost:11434/v1", pc.BaseURL)
	assert.Equal(t, "sk-test", pc.APIKey)
	assert.Equal(t, "gpt-4o-mini", pc.Model)
	assert.Equal(t, 30*time.Second, pc.Timeout)
	assert.Equal(t, "org-1", pc.Organization)
	assert.Equal(t, "openai", pc.Name())
}

func TestLLMConfig_ResilienceConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	cfg.MaxRetries = 0
	cfg.BreakerThreshold = 3
	cfg.BreakerResetTimeout = time.Minute
	cfg.RequestsPerSecond = 0

	rc := cfg.ResilienceConfig()
	require.NotNil(t, rc.RetryPolicy)
	assert.Equal(t, 0, rc.RetryPolicy.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, rc.RetryPolicy.InitialDelay)
	require.NotNil(t, rc.CircuitBreaker)
	assert.Equal(t, 3, rc.CircuitBreaker.Threshold)
	assert.Equal(t, time.Minute, rc.CircuitBreaker.ResetTimeout)
	assert.Equal(t, 30*time.Second, rc.CallTimeout)
	assert.Zero(t, rc.RequestsPerSecond)
}

func TestConfig_EmbeddingConfigInheritsLLMEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.BaseURL = "https://llm.internal/v1"
	cfg.LLM.APIKey = "shared"

	ec := cfg.EmbeddingConfig()
	assert.Equal(t, "https://llm.internal/v1", ec.BaseURL)
	assert.Equal(t, "shared", ec.APIKey)

	cfg.Embedding.BaseURL = "https://embed.internal/v1"
	cfg.Embedding.APIKey = "own"
	ec = cfg.EmbeddingConfig()
	assert.Equal(t, "https://embed.internal/v1", ec.BaseURL)
	assert.Equal(t, "own", ec.APIKey)
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/debatehub/agent/conversation"
	"github.com/BaSui01/debatehub/internal/cache"
	"github.com/BaSui01/debatehub/internal/database"
	"github.com/BaSui01/debatehub/internal/server"
	"github.com/BaSui01/debatehub/internal/telemetry"
	"github.com/BaSui01/debatehub/llm/embedding"
	"github.com/BaSui01/debatehub/rag"
)

// =============================================================================
// 🎯 配置结构
// =============================================================================

// Config 进程级配置。env 标签拼成 DEBATEHUB_<SECTION>_<FIELD>。
type Config struct {
	Server       server.Config       `yaml:"server" env:"SERVER"`
	LLM          LLMConfig           `yaml:"llm" env:"LLM"`
	Embedding    embedding.Config    `yaml:"embedding" env:"EMBEDDING"`
	Orchestrator conversation.Config `yaml:"orchestrator" env:"ORCHESTRATOR"`
	Retrieval    RetrievalConfig     `yaml:"retrieval" env:"RETRIEVAL"`
	Personas     PersonasConfig      `yaml:"personas" env:"PERSONAS"`
	Redis        RedisConfig         `yaml:"redis" env:"REDIS"`
	Database     database.Config     `yaml:"database" env:"DATABASE"`
	Log          LogConfig           `yaml:"log" env:"LOG"`
	Telemetry    telemetry.Config    `yaml:"telemetry" env:"TELEMETRY"`
	Auth         AuthConfig          `yaml:"auth" env:"AUTH"`
}

// LLMConfig 聊天补全上游，任意 OpenAI 协议端点
type LLMConfig struct {
	// Provider 只用于日志与指标标签
	Provider     string        `yaml:"provider" env:"PROVIDER"`
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	APIKey       string        `yaml:"api_key" env:"API_KEY"`
	Organization string        `yaml:"organization" env:"ORGANIZATION"`
	Model        string        `yaml:"model" env:"MODEL"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`

	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`

	// 熔断打开期间评分退回关键词选择
	BreakerThreshold    int           `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT"`

	// <=0 不限流
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst" env:"BURST"`
}

// RetrievalConfig 检索后端。阈值与预算属于 Orchestrator.Retrieval。
type RetrievalConfig struct {
	// memory | qdrant
	Store  string             `yaml:"store" env:"STORE"`
	Qdrant rag.QdrantConfig   `yaml:"qdrant" env:"QDRANT"`
	Ingest rag.IngestorConfig `yaml:"ingest" env:"INGEST"`
}

// PersonasConfig 人设来源
type PersonasConfig struct {
	// 为空用内置人设
	File     string   `yaml:"file" env:"FILE"`
	Disabled []string `yaml:"disabled" env:"DISABLED"`

	// 文件变更后只影响新会话
	Watch         bool          `yaml:"watch" env:"WATCH"`
	WatchInterval time.Duration `yaml:"watch_interval" env:"WATCH_INTERVAL"`
}

// RedisConfig 内嵌的 cache.Config 与外层共用 REDIS 前缀
type RedisConfig struct {
	Enabled      bool `yaml:"enabled" env:"ENABLED"`
	cache.Config `yaml:",inline"`
}

type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`   // debug/info/warn/error
	Format           string   `yaml:"format" env:"FORMAT"` // json/console
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// AuthConfig APIKeys 与 JWT 都为空时不启用认证
type AuthConfig struct {
	APIKeys          []string  `yaml:"api_keys" env:"API_KEYS"`
	AllowQueryAPIKey bool      `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	JWT              JWTConfig `yaml:"jwt" env:"JWT"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// JWTConfig HS256 用 Secret，RS256 用 PEM 公钥
type JWTConfig struct {
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// =============================================================================
// ✅ 校验
// =============================================================================

// Validate 一次报告全部问题
func (c *Config) Validate() error {
	var errs []error
	check := func(bad bool, format string, args ...any) {
		if bad {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(strings.TrimSpace(c.Server.Addr) == "", "server.addr is required")
	check((c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == ""),
		"server tls_cert_file and tls_key_file must be set together")

	check(c.LLM.Timeout < 0 || c.LLM.MaxRetries < 0, "llm timeout and max_retries must not be negative")
	check(c.LLM.BreakerThreshold <= 0, "llm.breaker_threshold must be positive")

	if err := c.Orchestrator.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, temp := range []float32{c.Orchestrator.Scoring.Temperature, c.Orchestrator.Generation.Temperature} {
		if temp < 0 || temp > 2 {
			errs = append(errs, fmt.Errorf("temperature %.2f must be between 0 and 2", temp))
			break
		}
	}

	switch c.Retrieval.Store {
	case "memory":
	case "qdrant":
		check(c.Retrieval.Qdrant.Collection == "", "retrieval.qdrant.collection is required")
	default:
		errs = append(errs, fmt.Errorf("unknown retrieval store %q", c.Retrieval.Store))
	}
	if err := c.Retrieval.Ingest.Chunking.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Database.Enabled() {
		if _, err := database.Dialector(c.Database.Driver, c.Database.DSN); err != nil {
			errs = append(errs, err)
		}
		check(c.Database.DSN == "", "database.dsn is required when a driver is set")
	}
	check(c.Redis.Enabled && c.Redis.Addr == "", "redis.addr is required when redis is enabled")

	if c.Telemetry.Enabled {
		if err := c.Telemetry.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	check(c.Log.Format != "json" && c.Log.Format != "console", "unknown log format %q", c.Log.Format)
	check(c.Auth.RateLimitRPS < 0 || c.Auth.RateLimitBurst < 0, "auth rate limit must not be negative")

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

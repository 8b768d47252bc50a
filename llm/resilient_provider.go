package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/debatehub/llm/circuitbreaker"
	"github.com/BaSui01/debatehub/llm/retry"
	"github.com/BaSui01/debatehub/types"
)

// ResilientProvider 具有弹性能力的 Provider 包装器
// 提供限流、重试、熔断与调用观测，不修改底层 Provider。
type ResilientProvider struct {
	provider Provider
	retryer  retry.Retryer
	breaker  circuitbreaker.CircuitBreaker
	limiter  *rate.Limiter
	observer CallObserver
	timeout  time.Duration
	logger   *zap.Logger
}

// ResilientProviderConfig 弹性 Provider 配置
type ResilientProviderConfig struct {
	// CallTimeout 单次上游调用超时（请求未指定 Timeout 时生效）
	CallTimeout time.Duration
	// RetryPolicy 为空则不重试
	RetryPolicy *retry.RetryPolicy
	// CircuitBreaker 为空则不熔断
	CircuitBreaker *circuitbreaker.Config
	// RequestsPerSecond <= 0 表示不限流
	RequestsPerSecond float64
	Burst             int
}

// DefaultResilientProviderConfig 返回默认配置
func DefaultResilientProviderConfig() *ResilientProviderConfig {
	return &ResilientProviderConfig{
		CallTimeout:       30 * time.Second,
		RetryPolicy:       retry.DefaultRetryPolicy(),
		CircuitBreaker:    circuitbreaker.DefaultConfig(),
		RequestsPerSecond: 10,
		Burst:             10,
	}
}

// NewResilientProvider 创建具有弹性能力的 Provider
func NewResilientProvider(provider Provider, cfg *ResilientProviderConfig, observer CallObserver, logger *zap.Logger) *ResilientProvider {
	if cfg == nil {
		cfg = DefaultResilientProviderConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "resilient_provider"), zap.String("provider", provider.Name()))

	rp := &ResilientProvider{
		provider: provider,
		observer: observer,
		timeout:  cfg.CallTimeout,
		logger:   logger,
	}
	if cfg.RetryPolicy != nil {
		policy := *cfg.RetryPolicy
		if policy.ShouldRetry == nil {
			policy.ShouldRetry = shouldRetry
		}
		rp.retryer = retry.NewBackoffRetryer(&policy, logger)
	}
	if cfg.CircuitBreaker != nil {
		rp.breaker = circuitbreaker.NewCircuitBreaker(cfg.CircuitBreaker, logger)
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		rp.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return rp
}

// Completion 限流 → 超时 → 重试 → 熔断
func (rp *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	call := func(ctx context.Context) (*ChatResponse, error) {
		if rp.retryer == nil {
			return rp.attempt(ctx, req)
		}
		return retry.DoWithResult(ctx, rp.retryer, func() (*ChatResponse, error) {
			return rp.attempt(ctx, req)
		})
	}
	if rp.breaker == nil {
		return call(ctx)
	}

	var resp *ChatResponse
	err := rp.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = call(ctx)
		return err
	})
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen):
		return nil, types.NewError(types.ErrServiceUnavailable, "llm circuit open").
			WithCause(err).WithProvider(rp.provider.Name())
	case err != nil:
		return nil, err
	}
	return resp, nil
}

// attempt 单次上游调用。只有本次调用超时（而非外层 ctx 结束）才标记为可重试的超时。
func (rp *ResilientProvider) attempt(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if rp.limiter != nil {
		if err := rp.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrRateLimit, "llm rate limiter").WithCause(err)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = rp.timeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := rp.provider.Completion(callCtx, req)
	rp.observe(req, resp, time.Since(start), err)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, types.NewError(types.ErrUpstreamTimeout, "completion timed out").
			WithCause(err).WithRetryable(true).WithProvider(rp.provider.Name())
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Available reports whether the breaker would admit a call right now.
func (rp *ResilientProvider) Available() bool {
	return rp.breaker == nil || rp.breaker.Allow()
}

// BreakerState exposes the breaker state for health reporting.
func (rp *ResilientProvider) BreakerState() circuitbreaker.State {
	if rp.breaker == nil {
		return circuitbreaker.StateClosed
	}
	return rp.breaker.State()
}

func (rp *ResilientProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return rp.provider.HealthCheck(ctx)
}

// Name 实现 Provider.Name
func (rp *ResilientProvider) Name() string {
	return rp.provider.Name()
}

func (rp *ResilientProvider) observe(req *ChatRequest, resp *ChatResponse, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		rp.logger.Debug("completion attempt failed",
			zap.String("model", req.Model),
			zap.String("trace_id", req.TraceID),
			zap.String("operation", req.Metadata["operation"]),
			zap.String("session_id", req.Metadata["session_id"]),
			zap.Error(err))
	}
	if rp.observer == nil {
		return
	}
	var prompt, completion int
	if resp != nil {
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	rp.observer.RecordLLMRequest(rp.provider.Name(), req.Model, status, d, prompt, completion, 0)
}

// shouldRetry retries typed errors marked retryable and any untyped error
// (usually a transport failure).
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if e, ok := types.AsError(err); ok {
		return e.Retryable
	}
	return true
}

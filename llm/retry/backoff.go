package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy 指数退避参数。MaxRetries 不含首次调用。
type RetryPolicy struct {
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	// Jitter 在退避值上加 ±25% 抖动，下限仍为 InitialDelay
	Jitter bool `yaml:"jitter" json:"jitter"`

	// ShouldRetry 为空时所有错误都重试
	ShouldRetry func(err error) bool `yaml:"-" json:"-"`
	// OnRetry 每次等待前调用，attempt 从 1 开始
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultRetryPolicy 补全在一轮发言的关键路径上，只重试两次
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

type Retryer interface {
	Do(ctx context.Context, fn func() error) error
}

// ErrExhausted 全部尝试失败时包在最后一个错误外
var ErrExhausted = errors.New("retries exhausted")

type backoffRetryer struct {
	policy RetryPolicy
	logger *zap.Logger
}

// NewBackoffRetryer policy 为 nil 时用默认策略；不合法的字段被修正
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) Retryer {
	p := *DefaultRetryPolicy()
	if policy != nil {
		p = *policy
	}
	p.MaxRetries = max(p.MaxRetries, 0)
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	p.MaxDelay = max(p.MaxDelay, p.InitialDelay)
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &backoffRetryer{policy: p, logger: logger.With(zap.String("component", "retry"))}
}

func (r *backoffRetryer) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return r.policy.ShouldRetry == nil || r.policy.ShouldRetry(err)
}

func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	attempts := r.policy.MaxRetries + 1
	err := fn()
	for attempt := 1; err != nil; attempt++ {
		if !r.retryable(ctx, err) {
			return err
		}
		if attempt == attempts {
			r.logger.Warn("retries exhausted", zap.Int("attempts", attempts), zap.Error(err))
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
		}

		delay := r.delay(attempt)
		r.logger.Debug("retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.policy.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err))
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}
		if werr := sleep(ctx, delay); werr != nil {
			return fmt.Errorf("retry cancelled: %w", werr)
		}
		err = fn()
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// delay 第 n 次重试等待 initial * multiplier^(n-1)，封顶 MaxDelay
func (r *backoffRetryer) delay(attempt int) time.Duration {
	p := r.policy
	d := min(float64(p.InitialDelay)*math.Pow(p.Multiplier, float64(attempt-1)), float64(p.MaxDelay))
	if p.Jitter {
		d += (rand.Float64()*2 - 1) * d / 4
	}
	return time.Duration(max(d, float64(p.InitialDelay)))
}

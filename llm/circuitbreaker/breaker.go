package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/types"
)

// State 熔断器状态
type State int

const (
	StateClosed   State = iota // 正常放行
	StateOpen                  // 熔断中，直接拒绝
	StateHalfOpen              // 放行少量试探请求
)

var stateNames = [...]string{"closed", "open", "half_open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Config 熔断器配置，非正值回落到默认值
type Config struct {
	// 连续失败多少次后打开
	Threshold int `yaml:"threshold" json:"threshold"`
	// 打开后多久进入半开
	ResetTimeout time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
	// 半开时同时放行的试探请求数
	HalfOpenMaxCalls int `yaml:"half_open_max_calls" json:"half_open_max_calls"`

	// OnStateChange 在锁外同步调用
	OnStateChange func(from, to State) `yaml:"-" json:"-"`
}

func DefaultConfig() *Config {
	return &Config{Threshold: 5, ResetTimeout: 30 * time.Second, HalfOpenMaxCalls: 1}
}

// CircuitBreaker 保护上游调用。客户端错误与取消不计入失败。
type CircuitBreaker interface {
	// Call 熔断打开时不调用 fn，直接返回 ErrCircuitOpen
	Call(ctx context.Context, fn func(ctx context.Context) error) error
	// Allow 只读：下一次 Call 是否会放行
	Allow() bool
	State() State
	Reset()
}

var (
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrTooManyCallsInHalfOpen = errors.New("too many calls while half-open")
)

type breaker struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int // 半开期间已放行的试探数
}

func NewCircuitBreaker(cfg *Config, logger *zap.Logger) CircuitBreaker {
	return newBreaker(cfg, logger, time.Now)
}

func newBreaker(cfg *Config, logger *zap.Logger, now func() time.Time) *breaker {
	def := DefaultConfig()
	c := *def
	if cfg != nil {
		c = *cfg
	}
	if c.Threshold <= 0 {
		c.Threshold = def.Threshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = def.ResetTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &breaker{cfg: c, logger: logger.With(zap.String("component", "circuit_breaker")), now: now}
}

func (b *breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err == nil || isClientError(err))
	return err
}

func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		return b.cooledDown()
	case StateHalfOpen:
		return b.probes < b.cfg.HalfOpenMaxCalls
	}
	return true
}

func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) Reset() {
	b.mu.Lock()
	b.failures = 0
	done := b.moveTo(StateClosed)
	b.mu.Unlock()
	done()
}

// cooledDown 调用方持锁
func (b *breaker) cooledDown() bool {
	return b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout
}

// moveTo 调用方持锁。返回的函数在解锁后执行，负责日志与回调。
func (b *breaker) moveTo(to State) func() {
	from := b.state
	if from == to {
		return func() {}
	}
	b.state = to
	b.probes = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	failures := b.failures
	return func() {
		switch to {
		case StateOpen:
			b.logger.Warn("circuit breaker opened", zap.Int("consecutive_failures", failures))
		default:
			b.logger.Info("circuit breaker state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		}
		if b.cfg.OnStateChange != nil {
			b.cfg.OnStateChange(from, to)
		}
	}
}

func (b *breaker) acquire() error {
	b.mu.Lock()
	done := func() {}
	switch b.state {
	case StateOpen:
		if !b.cooledDown() {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		done = b.moveTo(StateHalfOpen)
		b.probes = 1
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenMaxCalls {
			b.mu.Unlock()
			return ErrTooManyCallsInHalfOpen
		}
		b.probes++
	}
	b.mu.Unlock()
	done()
	return nil
}

func (b *breaker) record(ok bool) {
	b.mu.Lock()
	done := func() {}
	switch {
	case ok:
		b.failures = 0
		if b.state == StateHalfOpen {
			done = b.moveTo(StateClosed)
		}
	default:
		b.failures++
		// 半开时任何失败都重新打开
		if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
			done = b.moveTo(StateOpen)
		}
	}
	b.mu.Unlock()
	done()
}

// isClientError 请求本身有问题，与上游健康无关
func isClientError(err error) bool {
	switch types.GetErrorCode(err) {
	case types.ErrInvalidRequest, types.ErrUnauthorized, types.ErrForbidden:
		return true
	}
	return errors.Is(err, context.Canceled)
}

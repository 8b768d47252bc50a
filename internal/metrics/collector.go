// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/agent/conversation"
	"github.com/BaSui01/debatehub/llm"
)

// =============================================================================
// 📊 Prometheus 指标
// =============================================================================

// Collector 同时实现 conversation.Recorder 与 llm.CallObserver，
// HTTP 中间件也向它上报
type Collector struct {
	namespace string
	reg       prometheus.Registerer
	factory   promauto.Factory
	logger    *zap.Logger

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpBytes    *prometheus.HistogramVec

	llmCalls   *prometheus.CounterVec
	llmLatency *prometheus.HistogramVec
	llmTokens  *prometheus.CounterVec
	llmCost    *prometheus.CounterVec

	rounds         *prometheus.CounterVec
	roundLatency   *prometheus.HistogramVec
	selections     *prometheus.CounterVec
	selectionScore *prometheus.HistogramVec
	fallbacks      *prometheus.CounterVec
	closures       *prometheus.CounterVec
	sessionTurns   prometheus.Histogram
}

var (
	_ conversation.Recorder = (*Collector)(nil)
	_ llm.CallObserver      = (*Collector)(nil)
)

// Option 配置 Collector
type Option func(*Collector)

// WithRegisterer 注册到指定 registry；默认 prometheus.DefaultRegisterer
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Collector) { c.reg = reg }
}

// NewCollector 创建并注册全部指标。同一 registry 上同一 namespace 只能创建一次。
func NewCollector(namespace string, logger *zap.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		namespace: namespace,
		reg:       prometheus.DefaultRegisterer,
		logger:    logger.With(zap.String("component", "metrics")),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.factory = promauto.With(c.reg)

	// HTTP
	c.httpRequests = c.counter("http_requests_total", "HTTP requests by route and status class", "method", "path", "status")
	c.httpLatency = c.histogram("http_request_duration_seconds", "HTTP request latency", prometheus.DefBuckets, "method", "path")
	c.httpBytes = c.histogram("http_body_bytes", "HTTP body size by direction", prometheus.ExponentialBuckets(64, 4, 8), "method", "path", "direction")

	// LLM 上游
	c.llmCalls = c.counter("llm_requests_total", "Upstream completion attempts", "provider", "model", "status")
	c.llmLatency = c.histogram("llm_request_duration_seconds", "Upstream completion latency", []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}, "provider", "model")
	c.llmTokens = c.counter("llm_tokens_total", "Tokens consumed by kind", "provider", "model", "kind")
	c.llmCost = c.counter("llm_cost_usd_total", "Estimated upstream spend", "provider", "model")

	// 会议编排
	c.rounds = c.counter("debate_rounds_total", "Rounds advanced by outcome", "outcome")
	c.roundLatency = c.histogram("debate_round_duration_seconds", "Wall time of one round", []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}, "outcome")
	c.selections = c.counter("debate_speaker_selections_total", "Selected speakers by strategy", "strategy", "persona")
	c.selectionScore = c.histogram("debate_selection_score", "Relevance score of the chosen speaker", prometheus.LinearBuckets(0, 10, 11), "strategy")
	c.fallbacks = c.counter("debate_fallbacks_total", "Degraded results replaced by a fallback", "component", "reason")
	c.closures = c.counter("debate_sessions_closed_total", "Closed sessions by reason", "reason")
	c.sessionTurns = c.factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "debate_session_turns",
		Help:      "Turns in a session when it closed",
		Buckets:   []float64{2, 5, 10, 15, 20, 30, 50},
	})

	c.logger.Debug("metrics registered", zap.String("namespace", namespace))
	return c
}

func (c *Collector) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return c.factory.NewCounterVec(prometheus.CounterOpts{Namespace: c.namespace, Name: name, Help: help}, labels)
}

func (c *Collector) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return c.factory.NewHistogramVec(prometheus.HistogramOpts{Namespace: c.namespace, Name: name, Help: help, Buckets: buckets}, labels)
}

// TrackSessions 以 gauge 暴露当前会话数
func (c *Collector) TrackSessions(count func() int) {
	c.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      "debate_sessions",
		Help:      "Sessions currently held by the manager",
	}, func() float64 { return float64(count()) })
}

// WatchDB 暴露归档库连接池统计
func (c *Collector) WatchDB(db *sql.DB, name string) {
	if err := c.reg.Register(collectors.NewDBStatsCollector(db, name)); err != nil {
		c.logger.Warn("db stats collector not registered", zap.String("db", name), zap.Error(err))
	}
}

// RecordHTTPRequest 由 MetricsMiddleware 调用，path 已归一化
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpLatency.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpBytes.WithLabelValues(method, path, "in").Observe(float64(requestSize))
	c.httpBytes.WithLabelValues(method, path, "out").Observe(float64(responseSize))
}

// RecordLLMRequest 每次上游调用尝试一条
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	c.llmCalls.WithLabelValues(provider, model, status).Inc()
	c.llmLatency.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokens.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokens.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	if cost > 0 {
		c.llmCost.WithLabelValues(provider, model).Add(cost)
	}
}

func (c *Collector) RecordRound(outcome string, duration time.Duration) {
	c.rounds.WithLabelValues(outcome).Inc()
	c.roundLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (c *Collector) RecordSelection(strategy, personaID string, score float64) {
	c.selections.WithLabelValues(strategy, personaID).Inc()
	c.selectionScore.WithLabelValues(strategy).Observe(score)
}

func (c *Collector) RecordFallback(component, reason string) {
	c.fallbacks.WithLabelValues(component, reason).Inc()
}

func (c *Collector) RecordSessionClosed(reason string, turns int) {
	c.closures.WithLabelValues(reason).Inc()
	c.sessionTurns.Observe(float64(turns))
}

// statusClass 200 -> "2xx"，越界归为 unknown
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

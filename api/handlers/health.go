package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 存活 / 就绪 / 版本
// =============================================================================

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// Check 一个外部依赖的就绪检查。
// Soft 的检查失败只把整体降为 degraded：LLM 熔断打开时会议仍能靠关键词选人与占位回复推进。
type Check struct {
	Name    string
	Probe   func(ctx context.Context) error
	Soft    bool
	Timeout time.Duration // 0 时用 defaultCheckTimeout
}

const defaultCheckTimeout = 3 * time.Second

// HealthStatus /health 与 /ready 的响应体
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Sessions  *int                   `json:"sessions,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult Status 为 pass / warn / fail
type CheckResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// BuildInfo /version 的内容
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// HealthHandler 构造后只读，检查列表不再变化
type HealthHandler struct {
	checks   []Check
	sessions func() int
	logger   *zap.Logger
}

// NewHealthHandler sessions 可为 nil
func NewHealthHandler(logger *zap.Logger, sessions func() int, checks ...Check) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		checks:   checks,
		sessions: sessions,
		logger:   logger.With(zap.String("component", "health")),
	}
}

// HandleHealth 存活探针，不访问任何依赖
// @Summary Liveness
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus
// @Router /healthz [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{Status: statusHealthy, Timestamp: time.Now()}
	if h.sessions != nil {
		n := h.sessions()
		status.Sessions = &n
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleReady 并发执行全部检查；有硬检查失败时 503
// @Summary Readiness
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus "ready or degraded"
// @Failure 503 {object} HealthStatus
// @Router /readyz [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	results := make([]CheckResult, len(h.checks))
	var g errgroup.Group
	for i, c := range h.checks {
		g.Go(func() error {
			results[i] = h.run(r.Context(), c)
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{Status: statusHealthy, Timestamp: time.Now(), Checks: make(map[string]CheckResult, len(h.checks))}
	for i, c := range h.checks {
		status.Checks[c.Name] = results[i]
		status.Status = worse(status.Status, results[i].Status)
	}

	code := http.StatusOK
	if status.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

// worse 合并单项结果到整体状态
func worse(overall, result string) string {
	switch {
	case result == "fail":
		return statusUnhealthy
	case result == "warn" && overall == statusHealthy:
		return statusDegraded
	}
	return overall
}

func (h *HealthHandler) run(ctx context.Context, c Check) CheckResult {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.Probe(ctx)
	res := CheckResult{Status: "pass", LatencyMS: time.Since(start).Milliseconds()}
	if err == nil {
		return res
	}

	res.Status, res.Message = "fail", err.Error()
	if c.Soft {
		res.Status = "warn"
	}
	h.logger.Warn("readiness check failed",
		zap.String("check", c.Name),
		zap.String("result", res.Status),
		zap.Int64("latency_ms", res.LatencyMS),
		zap.Error(err))
	return res
}

// HandleVersion
// @Summary Build information
// @Tags health
// @Produce json
// @Success 200 {object} BuildInfo
// @Router /version [get]
func (h *HealthHandler) HandleVersion(info BuildInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}

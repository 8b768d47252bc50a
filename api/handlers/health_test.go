package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthStatus {
	t.Helper()
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return status
}

func pass(context.Context) error { return nil }

func failWith(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func ready(h *HealthHandler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return w
}

func TestHealthHandler_Liveness(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(nil, nil, Check{Name: "db", Probe: failWith("never called")}).
		HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	status := decodeHealth(t, w)
	assert.Equal(t, statusHealthy, status.Status)
	assert.False(t, status.Timestamp.IsZero())
	assert.Nil(t, status.Sessions)
	assert.Empty(t, status.Checks)

	w = httptest.NewRecorder()
	NewHealthHandler(nil, func() int { return 3 }).HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	status = decodeHealth(t, w)
	require.NotNil(t, status.Sessions)
	assert.Equal(t, 3, *status.Sessions)
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     []Check
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{"no checks", nil, http.StatusOK, statusHealthy, map[string]string{}},
		{
			"all pass",
			[]Check{{Name: "redis", Probe: pass}, {Name: "llm", Probe: pass, Soft: true}},
			http.StatusOK, statusHealthy,
			map[string]string{"redis": "pass", "llm": "pass"},
		},
		{
			"soft failure degrades",
			[]Check{{Name: "redis", Probe: pass}, {Name: "llm", Probe: failWith("circuit breaker open"), Soft: true}},
			http.StatusOK, statusDegraded,
			map[string]string{"redis": "pass", "llm": "warn"},
		},
		{
			"hard failure wins over soft",
			[]Check{{Name: "llm", Probe: failWith("open"), Soft: true}, {Name: "database", Probe: failWith("refused")}},
			http.StatusServiceUnavailable, statusUnhealthy,
			map[string]string{"database": "fail", "llm": "warn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ready(NewHealthHandler(zap.NewNop(), nil, tt.checks...))

			assert.Equal(t, tt.wantCode, w.Code)
			status := decodeHealth(t, w)
			assert.Equal(t, tt.wantStatus, status.Status)
			got := make(map[string]string, len(status.Checks))
			for name, res := range status.Checks {
				got[name] = res.Status
				if res.Status != "pass" {
					assert.NotEmpty(t, res.Message)
				}
			}
			assert.Equal(t, tt.wantChecks, got)
		})
	}
}

func TestHealthHandler_ChecksRunConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := func(context.Context) error {
		n := inFlight.Add(1)
		for p := peak.Load(); n > p && !peak.CompareAndSwap(p, n); p = peak.Load() {
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}
	h := NewHealthHandler(zap.NewNop(), nil,
		Check{Name: "redis", Probe: slow}, Check{Name: "database", Probe: slow}, Check{Name: "qdrant", Probe: slow})

	assert.Equal(t, http.StatusOK, ready(h).Code)
	assert.Greater(t, peak.Load(), int32(1))
}

func TestHealthHandler_CheckTimeout(t *testing.T) {
	hang := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	h := NewHealthHandler(zap.NewNop(), nil, Check{Name: "qdrant", Probe: hang, Timeout: 20 * time.Millisecond})

	start := time.Now()
	w := ready(h)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decodeHealth(t, w).Checks["qdrant"].Message, "deadline exceeded")
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(nil, nil).
		HandleVersion(BuildInfo{Version: "1.0.0", BuildTime: "2026-01-01T00:00:00Z", GitCommit: "abc123"})(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool      `json:"success"`
		Data    BuildInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, BuildInfo{Version: "1.0.0", BuildTime: "2026-01-01T00:00:00Z", GitCommit: "abc123"}, resp.Data)
}

func TestWorse(t *testing.T) {
	assert.Equal(t, statusDegraded, worse(statusHealthy, "warn"))
	assert.Equal(t, statusUnhealthy, worse(statusDegraded, "fail"))
	assert.Equal(t, statusUnhealthy, worse(statusUnhealthy, "warn"))
	assert.Equal(t, statusDegraded, worse(statusDegraded, "pass"))
}

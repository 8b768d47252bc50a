package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/config"
)

// 默认配置（进程内向量库、无 Redis、无数据库）下整条装配链能起服务
func TestServer_EndToEndWiring(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Auth.APIKeys = []string{"test-key"}
	cfg.Auth.RateLimitRPS = 0

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, zap.NewNop())
	require.NoError(t, err)

	srv := NewServer(cfg, a, nil, zap.NewNop())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Shutdown)

	base := "http://" + srv.httpManager.Addr()
	client := &http.Client{}

	do := func(method, path, body string, withKey bool) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, base+path, strings.NewReader(body))
		require.NoError(t, err)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if withKey {
			req.Header.Set("X-API-Key", "test-key")
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("health skips auth", func(t *testing.T) {
		resp := do(http.MethodGet, "/health", "", false)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("metrics exposed", func(t *testing.T) {
		resp := do(http.MethodGet, "/metrics", "", false)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("api requires key", func(t *testing.T) {
		resp := do(http.MethodGet, "/api/v1/personas", "", false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("personas listed", func(t *testing.T) {
		resp := do(http.MethodGet, "/api/v1/personas", "", true)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Success bool `json:"success"`
			Data    struct {
				Personas []struct {
					ID string `json:"id"`
				} `json:"personas"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body.Success)
		assert.Len(t, body.Data.Personas, a.manager.Personas().Len())
	})

	t.Run("session lifecycle without upstream calls", func(t *testing.T) {
		resp := do(http.MethodPost, "/api/v1/sessions", `{"objective":"Define pricing"}`, true)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var created struct {
			Data struct {
				SessionID string `json:"session_id"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		id := created.Data.SessionID
		require.NotEmpty(t, id)

		resp = do(http.MethodPost, "/api/v1/sessions/"+id+"/stop", "", true)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp = do(http.MethodGet, "/api/v1/sessions/"+id, "", true)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var status struct {
			Data struct {
				Active bool `json:"active"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		assert.False(t, status.Data.Active)
	})

	t.Run("archive routes absent without database", func(t *testing.T) {
		resp := do(http.MethodGet, "/api/v1/transcripts", "", true)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/debatehub/types"
)

// decodeEnvelope 解出统一响应结构
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestEnvelopeWriters(t *testing.T) {
	cases := []struct {
		write  func(http.ResponseWriter, any)
		status int
	}{
		{WriteSuccess, http.StatusOK},
		{WriteCreated, http.StatusCreated},
		{WriteAccepted, http.StatusAccepted},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		c.write(rec, map[string]string{"session_id": "s-1"})

		assert.Equal(t, c.status, rec.Code)
		assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

		resp := decodeEnvelope(t, rec)
		assert.True(t, resp.Success)
		assert.Nil(t, resp.Error)
		assert.Equal(t, map[string]any{"session_id": "s-1"}, resp.Data)
		assert.False(t, resp.Timestamp.IsZero())
	}
}

func TestWriteError_StatusByCode(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		code   types.ErrorCode
	}{
		"empty message":      {types.NewError(types.ErrEmptyInput, "message text is empty"), http.StatusBadRequest, types.ErrEmptyInput},
		"unknown session":    {types.NewError(types.ErrSessionNotFound, "no session s-9"), http.StatusNotFound, types.ErrSessionNotFound},
		"closed session":     {types.NewError(types.ErrSessionInactive, "meeting has ended"), http.StatusConflict, types.ErrSessionInactive},
		"unknown persona":    {types.NewError(types.ErrUnknownPersona, "persona ghost"), types.DefaultHTTPStatus(types.ErrUnknownPersona), types.ErrUnknownPersona},
		"throttled":          {types.NewError(types.ErrRateLimit, "slow down"), http.StatusTooManyRequests, types.ErrRateLimit},
		"wrapped generation": {fmt.Errorf("advance s-1: %w", types.NewError(types.ErrGenerationFailure, "model unavailable")), http.StatusBadGateway, types.ErrGenerationFailure},
		"untyped":            {errors.New("dial tcp 10.0.0.1:5432: connection refused"), http.StatusInternalServerError, types.ErrInternalError},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, c.err, zap.NewNop())

			assert.Equal(t, c.status, rec.Code)
			resp := decodeEnvelope(t, rec)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(c.code), resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestWriteError_HidesUntypedCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("postgres://archive:hunter2@db/debates"), nil)

	assert.Equal(t, "internal server error", decodeEnvelope(t, rec).Error.Message)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestWriteError_LogLevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	WriteError(httptest.NewRecorder(), types.NewError(types.ErrSessionNotFound, "s-1"), logger)
	WriteError(httptest.NewRecorder(), types.NewError(types.ErrGenerationFailure, "upstream 500"), logger)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}

func TestWriteErrorMessage_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorMessage(rec, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "use POST", zap.NewNop())
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "use POST", decodeEnvelope(t, rec).Error.Message)
}

func TestDecodeJSONBody(t *testing.T) {
	type messageBody struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
	}

	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "ok", body: `{"speaker":"Human","text":"what about latency?"}`},
		{name: "trailing comma", body: `{"text":"hi",}`, wantErr: "invalid JSON body"},
		{name: "unknown field", body: `{"text":"hi","persona":"tech"}`, wantErr: "invalid JSON body"},
		{name: "empty", body: "", wantErr: "request body is empty"},
		{name: "oversized", body: `{"text":"` + strings.Repeat("x", 2*maxBodyBytes) + `"}`, wantErr: "exceeds"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s-1/messages", nil)
			if c.body != "" {
				req = httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s-1/messages", strings.NewReader(c.body))
			}

			var dst messageBody
			err := DecodeJSONBody(rec, req, &dst, zap.NewNop())
			if c.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "what about latency?", dst.Text)
				assert.Equal(t, http.StatusOK, rec.Code, "nothing written on success")
				return
			}
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeEnvelope(t, rec).Error.Message, c.wantErr)
		})
	}
}

func TestValidateContentType(t *testing.T) {
	accepted := []string{"application/json", "application/json; charset=utf-8", "Application/JSON;charset=UTF-8"}
	rejected := []string{"", "text/plain", "application/x-www-form-urlencoded", "application/jsonl"}

	for _, ct := range accepted {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
		req.Header.Set("Content-Type", ct)
		assert.True(t, ValidateContentType(httptest.NewRecorder(), req, nil), ct)
	}
	for _, ct := range rejected {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
		req.Header.Set("Content-Type", ct)
		assert.False(t, ValidateContentType(rec, req, nil), ct)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestResponseWriter_FirstStatusSticks(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusConflict)
	assert.Equal(t, http.StatusAccepted, rw.StatusCode)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestResponseWriter_ImplicitOKCountsAndFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	_, err := rw.Write([]byte(`{"turn":1}`))
	require.NoError(t, err)
	_, err = rw.Write([]byte("\n"))
	require.NoError(t, err)
	rw.Flush()

	assert.True(t, rw.Written)
	assert.Equal(t, 11, rw.BytesWritten)
	assert.True(t, rec.Flushed)
	assert.Same(t, rec, rw.Unwrap())

	_, _, err = rw.Hijack()
	assert.Error(t, err, "recorder cannot be hijacked")
}

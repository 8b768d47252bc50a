package providers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/debatehub/types"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		msg       string
		code      types.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, "bad key", types.ErrUnauthorized, false},
		{http.StatusForbidden, "nope", types.ErrForbidden, false},
		{http.StatusTooManyRequests, "slow down", types.ErrRateLimit, true},
		{http.StatusBadRequest, "insufficient quota", types.ErrRateLimit, false},
		{http.StatusBadRequest, "invalid json", types.ErrInvalidRequest, false},
		{http.StatusGatewayTimeout, "timeout", types.ErrUpstreamTimeout, true},
		{http.StatusInternalServerError, "boom", types.ErrUpstreamError, true},
		{529, "overloaded", types.ErrUpstreamError, true},
		{http.StatusNotFound, "no model", types.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		err := MapHTTPError(tt.status, tt.msg, "openai")
		assert.Equal(t, tt.code, err.Code, "status %d", tt.status)
		assert.Equal(t, tt.retryable, err.Retryable, "status %d", tt.status)
		assert.Equal(t, tt.status, err.HTTPStatus)
		assert.Equal(t, "openai", err.Provider)
	}
}

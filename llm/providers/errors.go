package providers

import (
	"net/http"
	"strings"

	"github.com/BaSui01/debatehub/types"
)

// MapHTTPError 将上游 HTTP 状态码映射为带有合适重试标记的 types.Error
func MapHTTPError(status int, msg string, provider string) *types.Error {
	var e *types.Error
	switch {
	case status == http.StatusUnauthorized:
		e = types.NewError(types.ErrUnauthorized, msg)
	case status == http.StatusForbidden:
		e = types.NewError(types.ErrForbidden, msg)
	case status == http.StatusTooManyRequests:
		e = types.NewError(types.ErrRateLimit, msg).WithRetryable(true)
	case status == http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") {
			e = types.NewError(types.ErrRateLimit, msg)
		} else {
			e = types.NewError(types.ErrInvalidRequest, msg)
		}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e = types.NewError(types.ErrUpstreamTimeout, msg).WithRetryable(true)
	case status >= 500 || status == 529:
		e = types.NewError(types.ErrUpstreamError, msg).WithRetryable(true)
	default:
		e = types.NewError(types.ErrUpstreamError, msg)
	}
	return e.WithHTTPStatus(status).WithProvider(provider)
}

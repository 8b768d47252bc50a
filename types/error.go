package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 跨层统一的错误码，也是 API 响应中的 error.code
type ErrorCode string

// 通用与上游
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// 会议
const (
	ErrEmptyInput        ErrorCode = "EMPTY_INPUT"
	ErrSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionNotStarted ErrorCode = "SESSION_NOT_STARTED"
	ErrSessionInactive   ErrorCode = "SESSION_INACTIVE"
	ErrUnknownPersona    ErrorCode = "UNKNOWN_PERSONA"
	ErrInvalidPersona    ErrorCode = "INVALID_PERSONA"
	ErrGenerationFailure ErrorCode = "GENERATION_FAILURE"
	ErrRetrievalFailure  ErrorCode = "RETRIEVAL_FAILURE"
	ErrSnapshotCorrupted ErrorCode = "SNAPSHOT_CORRUPTED"
)

// httpStatus 未列出的错误码按 500 处理
var httpStatus = map[ErrorCode]int{
	ErrInvalidRequest:     http.StatusBadRequest,
	ErrEmptyInput:         http.StatusBadRequest,
	ErrUnknownPersona:     http.StatusBadRequest,
	ErrInvalidPersona:     http.StatusBadRequest,
	ErrUnauthorized:       http.StatusUnauthorized,
	ErrForbidden:          http.StatusForbidden,
	ErrNotFound:           http.StatusNotFound,
	ErrSessionNotFound:    http.StatusNotFound,
	ErrSessionInactive:    http.StatusConflict,
	ErrSessionNotStarted:  http.StatusConflict,
	ErrRateLimit:          http.StatusTooManyRequests,
	ErrUpstreamError:      http.StatusBadGateway,
	ErrGenerationFailure:  http.StatusBadGateway,
	ErrRetrievalFailure:   http.StatusBadGateway,
	ErrServiceUnavailable: http.StatusServiceUnavailable,
	ErrUpstreamTimeout:    http.StatusGatewayTimeout,
}

// DefaultHTTPStatus 错误码对应的 HTTP 状态
func DefaultHTTPStatus(code ErrorCode) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error 带错误码的结构化错误。With* 方法原地修改并返回自身，便于链式构造。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: DefaultHTTPStatus(code)}
}

func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	msg := "[" + string(e.Code) + "] " + e.Message
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is 按错误码比较：errors.Is(err, NewError(ErrEmptyInput, ""))
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider 标记出错的上游
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError 在错误链中找第一个 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// GetErrorCode 链中没有 *Error 时返回空串
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}

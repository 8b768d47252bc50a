package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/types"
)

// maxBodyBytes 请求体上限 1 MB
const maxBodyBytes = 1 << 20

// =============================================================================
// 📦 响应信封
// =============================================================================

// Response 所有 JSON 端点共用的信封
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo 失败时的 error 字段
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON 头写出之后编码失败也无法改状态码，错误忽略
func WriteJSON(w http.ResponseWriter, status int, data any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{Success: true, Data: data, Timestamp: time.Now()})
}

func WriteSuccess(w http.ResponseWriter, data any)  { writeData(w, http.StatusOK, data) }
func WriteCreated(w http.ResponseWriter, data any)  { writeData(w, http.StatusCreated, data) }
func WriteAccepted(w http.ResponseWriter, data any) { writeData(w, http.StatusAccepted, data) }

// WriteError 未分类的错误一律报 INTERNAL_ERROR，原因只进日志
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	apiErr, ok := types.AsError(err)
	if !ok {
		apiErr = types.NewError(types.ErrInternalError, "internal server error").WithCause(err)
	}
	status := apiErr.HTTPStatus
	if status == 0 {
		status = types.DefaultHTTPStatus(apiErr.Code)
	}
	logAPIError(logger, apiErr, status)

	WriteJSON(w, status, Response{
		Error: &ErrorInfo{
			Code:      string(apiErr.Code),
			Message:   apiErr.Message,
			Retryable: apiErr.Retryable,
		},
		Timestamp: time.Now(),
	})
}

// logAPIError 5xx 记 error，其余 warn
func logAPIError(logger *zap.Logger, e *types.Error, status int) {
	if logger == nil {
		return
	}
	level := zap.WarnLevel
	if status >= http.StatusInternalServerError {
		level = zap.ErrorLevel
	}
	ce := logger.Check(level, "API error")
	if ce == nil {
		return
	}
	fields := []zap.Field{
		zap.String("code", string(e.Code)),
		zap.String("message", e.Message),
		zap.Int("status", status),
		zap.Bool("retryable", e.Retryable),
	}
	if e.Provider != "" {
		fields = append(fields, zap.String("provider", e.Provider))
	}
	if e.Cause != nil {
		fields = append(fields, zap.Error(e.Cause))
	}
	ce.Write(fields...)
}

// WriteErrorMessage 显式指定状态码
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// =============================================================================
// 🛡️ 请求解析
// =============================================================================

func rejectBody(w http.ResponseWriter, logger *zap.Logger, msg string, cause error) error {
	err := types.NewError(types.ErrInvalidRequest, msg)
	if cause != nil {
		err = err.WithCause(cause)
	}
	WriteError(w, err, logger)
	return err
}

// DecodeJSONBody 严格解码：限 1 MB，拒绝未知字段。失败时错误响应已写出。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		return rejectBody(w, logger, "request body is empty", nil)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return rejectBody(w, logger, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), err)
	}
	return rejectBody(w, logger, "invalid JSON body", err)
}

// ValidateContentType 只接受 application/json（参数与大小写不限）
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "application/json" {
		return true
	}
	_ = rejectBody(w, logger, "Content-Type must be application/json", nil)
	return false
}

// =============================================================================
// 📊 状态码捕获
// =============================================================================

// ResponseWriter 记录状态码与写出字节，供日志、指标与追踪中间件读取。
// Flush 与 Hijack 透传给底层 writer。
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode   int
	Written      bool
	BytesWritten int
}

func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader 只有第一次生效
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.Written {
		return
	}
	rw.StatusCode, rw.Written = code, true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	rw.WriteHeader(http.StatusOK)
	n, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += n
	return n, err
}

func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack WebSocket 升级后状态码记为 101
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not support hijacking", rw.ResponseWriter)
	}
	rw.StatusCode, rw.Written = http.StatusSwitchingProtocols, true
	return hj.Hijack()
}

// Unwrap 供 http.ResponseController 使用
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

package types

import "context"

type ctxKey uint8

const (
	requestIDKey ctxKey = iota
	traceIDKey
	userIDKey
	sessionIDKey
)

func withString(ctx context.Context, k ctxKey, v string) context.Context {
	return context.WithValue(ctx, k, v)
}

// 空字符串视为未设置
func stringFrom(ctx context.Context, k ctxKey) (string, bool) {
	v, _ := ctx.Value(k).(string)
	return v, v != ""
}

// WithRequestID 由 RequestID 中间件写入
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) (string, bool) { return stringFrom(ctx, requestIDKey) }

// WithTraceID 由追踪中间件写入当前 span 的 trace id
func WithTraceID(ctx context.Context, id string) context.Context {
	return withString(ctx, traceIDKey, id)
}

// TraceID 没有 trace id 时退回到请求 ID，上游日志至少能和访问日志对上
func TraceID(ctx context.Context) (string, bool) {
	if id, ok := stringFrom(ctx, traceIDKey); ok {
		return id, true
	}
	return RequestID(ctx)
}

// WithUserID 认证中间件写入调用方
func WithUserID(ctx context.Context, id string) context.Context {
	return withString(ctx, userIDKey, id)
}

func UserID(ctx context.Context) (string, bool) { return stringFrom(ctx, userIDKey) }

// WithSessionID 会话相关 handler 写入
func WithSessionID(ctx context.Context, id string) context.Context {
	return withString(ctx, sessionIDKey, id)
}

func SessionID(ctx context.Context) (string, bool) { return stringFrom(ctx, sessionIDKey) }

package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	_, ok := SessionID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithUserID(ctx, "alice")
	ctx = WithSessionID(ctx, "s-1")

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
	id, _ = UserID(ctx)
	assert.Equal(t, "alice", id)
	id, _ = SessionID(ctx)
	assert.Equal(t, "s-1", id)

	_, ok = SessionID(WithSessionID(ctx, ""))
	assert.False(t, ok, "empty value reads as unset")
}

func TestTraceID_FallsBackToRequestID(t *testing.T) {
	_, ok := TraceID(context.Background())
	assert.False(t, ok)

	ctx := WithRequestID(context.Background(), "req-1")
	id, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)

	id, _ = TraceID(WithTraceID(ctx, "4bf92f3577b34da6a3ce929d0e0e4736"))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", id)
}

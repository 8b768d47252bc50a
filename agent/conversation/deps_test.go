package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/debatehub/llm"
	"github.com/BaSui01/debatehub/testutil/mocks"
	"github.com/BaSui01/debatehub/types"
)

func TestRecorders_FanOut(t *testing.T) {
	a, b := newCountingRecorder(), newCountingRecorder()
	r := Recorders(a, nil, b)

	r.RecordRound("spoke", time.Millisecond)
	r.RecordFallback("scorer", "timeout")
	r.RecordSelection("llm", "tech", 80)
	r.RecordSessionClosed("consensus", 7)

	for _, c := range []*countingRecorder{a, b} {
		assert.Equal(t, 1, c.rounds["spoke"])
		assert.Equal(t, 1, c.fallbacks["scorer"])
		assert.Equal(t, []string{"consensus"}, c.closed)
	}
}

func TestRecorders_SingleIsUnwrapped(t *testing.T) {
	a := newCountingRecorder()
	assert.Same(t, a, Recorders(nil, a))
	assert.Empty(t, Recorders(nil))
}

func TestProviderCompleter_RequestShape(t *testing.T) {
	provider := mocks.NewSuccessProvider("  {\"score\": 70}  ")
	c := NewProviderCompleter(provider, "default-model")

	ctx := types.WithSessionID(types.WithRequestID(context.Background(), "req-9"), "s-1")
	text, err := c.Complete(ctx, CompletionRequest{
		System:    "score this",
		Messages:  []types.Message{types.NewUserMessage("[Human]: hi").From("human")},
		JSON:      true,
		Operation: "score",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"score": 70}`, text)

	req := provider.GetLastCall().Request
	assert.Equal(t, "default-model", req.Model)
	assert.Equal(t, "req-9", req.TraceID)
	assert.Equal(t, llm.ResponseFormatJSONObject, req.ResponseFormat)
	assert.Equal(t, map[string]string{"operation": "score", "session_id": "s-1"}, req.Metadata)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, types.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "human", req.Messages[1].Name)
	assert.True(t, c.Available())
}

package conversation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/types"
)

type completerFunc func(ctx context.Context, req CompletionRequest) (string, error)

func (f completerFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}

type unavailableCompleter struct{ completerFunc }

func (unavailableCompleter) Available() bool { return false }

func strategist(t *testing.T) persona.Persona {
	t.Helper()
	p, ok := persona.DefaultRegistry().Get(persona.StrategistID)
	require.True(t, ok)
	return p
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantScore float64
		wantErr   bool
	}{
		{name: "valid", raw: `{"score": 72, "reasoning": "pricing is in scope"}`, wantScore: 72},
		{name: "fractional", raw: `{"score": 72.5, "reasoning": "ok"}`, wantScore: 72.5},
		{name: "surrounding whitespace", raw: "\n {\"score\": 0, \"reasoning\": \"silent\"} \n", wantScore: 0},
		{name: "missing closing brace repaired", raw: `{"score": 64, "reasoning": "close enough"`, wantScore: 64},
		{name: "trailing comma repaired", raw: `{"score": 55, "reasoning": "fine",}`, wantScore: 55},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "missing score", raw: `{"reasoning": "no score"}`, wantErr: true},
		{name: "score above range", raw: `{"score": 140, "reasoning": "too eager"}`, wantErr: true},
		{name: "negative score", raw: `{"score": -1, "reasoning": "below"}`, wantErr: true},
		{name: "missing reasoning", raw: `{"score": 50}`, wantErr: true},
		{name: "blank reasoning", raw: `{"score": 50, "reasoning": "  "}`, wantErr: true},
		{name: "unknown field", raw: `{"score": 50, "reasoning": "x", "confidence": 0.9}`, wantErr: true},
		{name: "score as string", raw: `{"score": "50", "reasoning": "x"}`, wantErr: true},
		{name: "trailing object", raw: `{"score": 50, "reasoning": "x"} {"score": 1}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseVerdict(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsErrorCode(err, types.ErrGenerationFailure))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, v.Score)
			assert.NotEmpty(t, v.Reasoning)
		})
	}
}

func TestLLMScorer_UsesStructuredReply(t *testing.T) {
	var seen CompletionRequest
	completer := completerFunc(func(_ context.Context, req CompletionRequest) (string, error) {
		seen = req
		return `{"score": 85, "reasoning": "pricing is the strategist's field"}`, nil
	})
	cfg := DefaultConfig().Scoring
	s := NewLLMScorer(completer, cfg, nil, nil, nil)

	got := s.Score(context.Background(), ScoreRequest{
		Persona:   strategist(t),
		Objective: "Define pricing",
		Context:   BuiltContext{Transcript: "[Human]: freemium or not?"},
	})

	assert.Equal(t, persona.StrategistID, got.PersonaID)
	assert.Equal(t, 85.0, got.Score)
	assert.Equal(t, "pricing is the strategist's field", got.Rationale)
	assert.False(t, got.Degraded)

	assert.True(t, seen.JSON)
	assert.Equal(t, cfg.Temperature, seen.Temperature)
	assert.Equal(t, cfg.MaxTokens, seen.MaxTokens)
	assert.Contains(t, seen.System, "Business Strategist (Business strategy consultant)")
	assert.Contains(t, seen.System, "0-40")
	require.Len(t, seen.Messages, 1)
	assert.Contains(t, seen.Messages[0].Content, "Meeting objective: Define pricing")
	assert.Contains(t, seen.Messages[0].Content, "[Human]: freemium or not?")
}

func TestLLMScorer_FallbackRange(t *testing.T) {
	ranges := []struct{ min, max int }{
		{20, 60},
		{0, 0},
		{45, 46},
		{0, 100},
	}
	failures := map[string]completerFunc{
		"completion error": func(context.Context, CompletionRequest) (string, error) {
			return "", errors.New("provider down")
		},
		"malformed reply": func(context.Context, CompletionRequest) (string, error) {
			return "I think the strategist should speak.", nil
		},
		"out of range": func(context.Context, CompletionRequest) (string, error) {
			return `{"score": 250, "reasoning": "very relevant"}`, nil
		},
	}

	for _, r := range ranges {
		for name, completer := range failures {
			t.Run(fmt.Sprintf("%s/%d-%d", name, r.min, r.max), func(t *testing.T) {
				cfg := DefaultConfig().Scoring
				cfg.FallbackMin, cfg.FallbackMax = r.min, r.max
				recorder := newCountingRecorder()
				s := NewLLMScorer(completer, cfg, rand.New(rand.NewPCG(7, 11)), recorder, nil)

				for i := 0; i < 50; i++ {
					got := s.Score(context.Background(), ScoreRequest{Persona: strategist(t)})
					assert.True(t, got.Degraded)
					assert.GreaterOrEqual(t, got.Score, float64(r.min))
					assert.LessOrEqual(t, got.Score, float64(r.max))
					assert.Contains(t, got.Rationale, "fallback score")
				}
				assert.Equal(t, 50, recorder.fallbacks["scorer"])
			})
		}
	}
}

func TestLLMScorer_SeededFallbackIsReproducible(t *testing.T) {
	completer := completerFunc(func(context.Context, CompletionRequest) (string, error) {
		return "", errors.New("down")
	})
	draw := func() []float64 {
		s := NewLLMScorer(completer, DefaultConfig().Scoring, rand.New(rand.NewPCG(1, 2)), nil, nil)
		out := make([]float64, 10)
		for i := range out {
			out[i] = s.Score(context.Background(), ScoreRequest{Persona: strategist(t)}).Score
		}
		return out
	}
	assert.Equal(t, draw(), draw())
}

func TestLLMScorer_Available(t *testing.T) {
	ok := completerFunc(func(context.Context, CompletionRequest) (string, error) { return "", nil })

	assert.False(t, NewLLMScorer(nil, DefaultConfig().Scoring, nil, nil, nil).Available())
	assert.True(t, NewLLMScorer(ok, DefaultConfig().Scoring, nil, nil, nil).Available())
	assert.False(t, NewLLMScorer(unavailableCompleter{ok}, DefaultConfig().Scoring, nil, nil, nil).Available())
}

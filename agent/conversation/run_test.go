package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/testutil"
	"github.com/BaSui01/debatehub/types"
)

func TestOrchestrator_RunUntilClosed(t *testing.T) {
	ctx := testutil.TestContext(t)
	registry := persona.DefaultRegistry()
	deps, sink, _ := newTestDeps(registry, debateProvider(registry, pricingScores))

	cfg := DefaultConfig()
	cfg.MaxTurns = 8
	o, err := NewOrchestrator(deps, cfg)
	require.NoError(t, err)
	_, err = o.Start(ctx, StartRequest{Objective: "Define pricing"})
	require.NoError(t, err)

	questions := []string{"Should we do freemium?", "", "What about seats?"}
	var observed []RoundResult
	report, err := o.Run(ctx, RunOptions{
		HumanInput: func(context.Context) (string, bool) {
			if len(questions) == 0 {
				return "", false
			}
			q := questions[0]
			questions = questions[1:]
			return q, true
		},
		OnTurn: func(res RoundResult) { observed = append(observed, res) },
	})
	require.NoError(t, err)

	assert.True(t, report.Closed)
	assert.Equal(t, CloseMaxTurns, report.CloseReason)
	assert.Equal(t, len(observed), report.Rounds)
	assert.Equal(t, o.Status().LogLength, report.Turns)
	assert.Equal(t, ModeAutomated, o.Status().Mode)
	assert.Equal(t, 2, countHuman(o.Transcript()))
	assert.Len(t, sink.ofType(EventEnd), 1)

	_, err = o.Run(ctx, RunOptions{})
	testutil.AssertErrorCode(t, err, types.ErrSessionInactive)
}

func countHuman(turns []Turn) int {
	n := 0
	for _, t := range turns {
		if t.IsHuman() {
			n++
		}
	}
	return n
}

func TestOrchestrator_RunRespectsMaxRounds(t *testing.T) {
	ctx := testutil.TestContext(t)
	registry := persona.DefaultRegistry()
	deps, _, _ := newTestDeps(registry, debateProvider(registry, pricingScores))

	o, err := NewOrchestrator(deps, DefaultConfig())
	require.NoError(t, err)
	_, err = o.Start(ctx, StartRequest{Objective: "Define pricing"})
	require.NoError(t, err)

	report, err := o.Run(ctx, RunOptions{MaxRounds: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Rounds)
	assert.False(t, report.Closed)
	assert.True(t, o.Status().Active)
	assert.Equal(t, 4, report.Turns)
}

func TestOrchestrator_RunStopsOnCancel(t *testing.T) {
	registry := persona.DefaultRegistry()
	deps, _, _ := newTestDeps(registry, debateProvider(registry, pricingScores))

	o, err := NewOrchestrator(deps, DefaultConfig())
	require.NoError(t, err)
	_, err = o.Start(context.Background(), StartRequest{Objective: "Define pricing"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	report, err := o.Run(ctx, RunOptions{
		OnTurn: func(res RoundResult) {
			if res.TurnIndex >= 3 {
				cancel()
			}
		},
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, report.Closed)
	assert.Equal(t, 3, report.Rounds)
	assert.True(t, o.Status().Active)
}

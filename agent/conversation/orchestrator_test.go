package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/testutil"
	"github.com/BaSui01/debatehub/testutil/mocks"
	"github.com/BaSui01/debatehub/types"
)

var pricingScores = map[string]float64{
	persona.FacilitatorID: 10,
	persona.StrategistID:  85,
	persona.TechID:        60,
	persona.CreativeID:    40,
	persona.ResearcherID:  35,
}

func TestOrchestrator_PricingScenario(t *testing.T) {
	ctx := testutil.TestContext(t)
	registry := persona.DefaultRegistry()
	provider := debateProvider(registry, pricingScores)
	deps, sink, _ := newTestDeps(registry, provider)

	o, err := NewOrchestrator(deps, DefaultConfig())
	require.NoError(t, err)

	_, err = o.Start(ctx, StartRequest{Objective: "Define pricing for a B2B SaaS tool"})
	require.NoError(t, err)

	opening, err := o.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, persona.FacilitatorID, opening.Speaker)
	assert.True(t, opening.Forced)
	assert.Contains(t, strings.ToLower(opening.Text), "pricing")
	system := provider.GetLastCall().Request.Messages[0].Content
	assert.Contains(t, system, "Define pricing for a B2B SaaS tool")

	_, err = o.SubmitHumanMessage(ctx, "Should we do freemium?")
	require.NoError(t, err)

	reply, err := o.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, persona.FacilitatorID, reply.Speaker)
	assert.Equal(t, persona.StrategistID, reply.Speaker)
	assert.Equal(t, StrategyScoring, reply.Strategy)
	assert.InDelta(t, 85, reply.Score, 1e-9)
	lower := strings.ToLower(reply.Text)
	assert.True(t, strings.Contains(lower, "freemium") || strings.Contains(lower, "pricing"))
	speaker, _ := registry.Get(reply.Speaker)
	assert.LessOrEqual(t, len(splitSentences(reply.Text)), speaker.MaxSentences)

	var closings []RoundResult
	inactive := 0
	for i := 0; i < 20; i++ {
		res, err := o.AdvanceTurn(ctx)
		if err != nil {
			testutil.AssertErrorCode(t, err, types.ErrSessionInactive)
			inactive++
			continue
		}
		if res.Closed {
			closings = append(closings, res)
		}
	}

	require.Len(t, closings, 1)
	assert.Equal(t, CloseMaxTurns, closings[0].CloseReason)
	assert.Equal(t, persona.FacilitatorID, closings[0].Speaker)
	assert.Greater(t, inactive, 0)

	status := o.Status()
	assert.False(t, status.Active)
	assert.Equal(t, CloseMaxTurns, status.CloseReason)

	closingTurns := 0
	for _, turn := range o.Transcript() {
		if turn.Kind == KindClosing {
			closingTurns++
			assert.Equal(t, persona.FacilitatorID, turn.Speaker)
		}
	}
	assert.Equal(t, 1, closingTurns)
	assert.Len(t, sink.ofType(EventEnd), 1)

	_, err = o.AdvanceTurn(ctx)
	testutil.AssertErrorCode(t, err, types.ErrSessionInactive)
}

func TestOrchestrator_MaxTurnCeiling(t *testing.T) {
	for _, maxTurns := range []int{4, 7, 20} {
		t.Run(fmt.Sprintf("max_turns=%d", maxTurns), func(t *testing.T) {
			ctx := testutil.TestContext(t)
			registry := persona.DefaultRegistry()
			deps, _, _ := newTestDeps(registry, debateProvider(registry, pricingScores))
			deps.Scorer = fixedScores(pricingScores)

			cfg := DefaultConfig()
			cfg.MaxTurns = maxTurns
			o, err := NewOrchestrator(deps, cfg)
			require.NoError(t, err)
			_, err = o.Start(ctx, StartRequest{Objective: "Pick a database"})
			require.NoError(t, err)

			for o.Status().TurnCount < maxTurns {
				res, err := o.AdvanceTurn(ctx)
				require.NoError(t, err)
				require.False(t, res.Closed)
			}
			assert.Equal(t, maxTurns, o.Status().TurnCount)
			assert.True(t, o.Status().Active)

			res, err := o.AdvanceTurn(ctx)
			require.NoError(t, err)
			assert.True(t, res.Closed)
			assert.Equal(t, CloseMaxTurns, res.CloseReason)
			assert.Equal(t, persona.FacilitatorID, res.Speaker)
			// 收尾总结追加在上限之后
			assert.Equal(t, maxTurns+1, o.Status().TurnCount)
			assert.Equal(t, maxTurns+2, o.Status().LogLength)
			assert.False(t, o.Status().Active)

			_, err = o.AdvanceTurn(ctx)
			testutil.AssertErrorCode(t, err, types.ErrSessionInactive)
		})
	}
}

func TestOrchestrator_HumanMessageBeforeFraming(t *testing.T) {
	ctx := testutil.TestContext(t)
	registry := persona.DefaultRegistry()
	deps, _, _ := newTestDeps(registry, debateProvider(registry, pricingScores))
	deps.Scorer = fixedScores(pricingScores)

	o, err := NewOrchestrator(deps, DefaultConfig())
	require.NoError(t, err)
	_, err = o.Start(ctx, StartRequest{Objective: "Define pricing"})
	require.NoError(t, err)
	_, err = o.SubmitHumanMessage(ctx, "Should we do freemium?")
	require.NoError(t, err)

	framing, err := o.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, persona.FacilitatorID, framing.Speaker)
	assert.Equal(t, StrategyForced, framing.Strategy)
	assert.True(t, framing.Forced)
	assert.Contains(t, framing.Text, "Today we must define pricing")
	assert.NotContains(t, framing.Phases, PhaseScoreCandidates)

	reply, err := o.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, persona.StrategistID, reply.Speaker)
	assert.Equal(t, StrategyScoring, reply.Strategy)
}

func TestOrchestrator_LifecycleErrors(t *testing.T) {
	ctx := testutil.TestContext(t)
	registry := persona.DefaultRegistry()
	deps, _, _ := newTestDeps(registry, mocks.NewSuccessProvider("fine"))
	o, err := NewOrchestrator(deps, DefaultConfig())
	require.NoError(t, err)

	_, err = o.AdvanceTurn(ctx)
	testutil.AssertErrorCode(t, err, types.ErrSessionNotStarted)
	_, err = o.SubmitHumanMessage(ctx, "hello")
	testutil.AssertErrorCode(t, err, types.ErrSessionNotStarted)

	_, err = o.Start(ctx, StartRequest{Objective: "   "})
	testutil.AssertErrorCode(t, err, types.ErrEmptyInput)
	assert.False(t, o.Status().Started)

	status, err := o.Start(ctx, StartRequest{Objective: "Choose a launch date"})
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, 0, status.TurnCount)
	assert.Equal(t, 1, status.LogLength)
	assert.Equal(t, persona.FacilitatorID, status.LastSpeaker)

	before := o.Status()
	_, err = o.SubmitHumanMessage(ctx, " \n\t")
	testutil.AssertErrorCode(t, err, types.ErrEmptyInput)
	assert.Equal(t, before, o.Status())

	turn, err := o.SubmitHumanMessage(ctx, "  What about Q3?  ")
	require.NoError(t, err)
	assert.Equal(t, "What about Q3?", turn.Content)
	assert.Equal(t, HumanSpeaker, o.Status().LastSpeaker)
	assert.Equal(t, before.TurnCount+1, o.Status().TurnCount)

	require.NoError(t, o.Stop(ctx))
	assert.Equal(t, CloseStopped, o.Status().CloseReason)
	_, err = o.SubmitHumanMessage(ctx, "still there?")
	testutil.AssertErrorCode(t, err, types.ErrSessionInactive)
	testutil.AssertErrorCode(t, o.Stop(ctx), types.ErrSessionInactive)

	o.Reset()
	assert.Equal(t, Status{SessionID: o.ID(), Mode: ModeTurnByTurn}, o.Status())
	_, err = o.AdvanceTurn(ctx)
	testutil.AssertErrorCode(t, err, types.ErrSessionNotStarted)

	_, err = o.Start(ctx, StartRequest{Objective: "Fresh start"})
	require.NoError(t, err)
	assert.Equal(t, 1, o.Status().LogLength)
}

func TestOrchestrator_GenerationFailureDegrades(t *testing.T) {
	ctx := testutil.TestContext(t)
	registry := persona.DefaultRegistry()
	deps, _, _ := newTestDeps(registry, mocks.NewErrorProvider(errors.New("upstream down")))
	recorder := newCountingRecorder()
	deps.Recorder = recorder

	o, err := NewOrchestrator(deps, DefaultConfig())
	require.NoError(t, err)
	_, err = o.Start(ctx, StartRequest{Objective: "Budget review"})
	require.NoError(t, err)

	res, err := o.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, DefaultConfig().Generation.Placeholder, res.Text)

	_, err = o.SubmitHumanMessage(ctx, "Thoughts on the budget?")
	require.NoError(t, err)
	res, err = o.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.NotEqual(t, persona.HumanID, res.Speaker)
	assert.NotEmpty(t, res.Speaker)
	assert.Equal(t, 4, o.Status().LogLength)
	assert.Positive(t, recorder.fallbacks["scorer"])
	assert.Positive(t, recorder.fallbacks["generator"])
}

func TestOrchestrator_KeywordFallbackAndQuickSynthesis(t *testing.T) {
	ctx := testutil.TestContext(t)
	registry := persona.DefaultRegistry()
	deps, _, _ := newTestDeps(registry, mocks.NewSuccessProvider("Noted."))
	deps.Scorer = &stubScorer{available: false}

	cfg := DefaultConfig()
	cfg.SynthesisEvery = 3
	o, err := NewOrchestrator(deps, cfg)
	require.NoError(t, err)
	_, err = o.Start(ctx, StartRequest{Objective: "Plan the offsite"})
	require.NoError(t, err)
	_, err = o.AdvanceTurn(ctx)
	require.NoError(t, err)

	_, err = o.SubmitHumanMessage(ctx, "Is the api fast enough?")
	require.NoError(t, err)
	res, err := o.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, persona.TechID, res.Speaker)
	assert.Equal(t, StrategyKeyword, res.Strategy)
	assert.True(t, res.Degraded)
	assert.NotContains(t, res.Phases, PhaseScoreCandidates)

	// New human turn with no keyword for anyone but the last speaker.
	_, err = o.SubmitHumanMessage(ctx, "And the database?")
	require.NoError(t, err)
	res, err = o.AdvanceTurn(ctx)
	require.NoError(t, err)
	// The tech lead already spoke but a human spoke last, so it may speak again.
	assert.Equal(t, persona.TechID, res.Speaker)

	length := o.Status().LogLength
	silent := 0
	for i := 0; i < cfg.SynthesisEvery; i++ {
		res, err = o.AdvanceTurn(ctx)
		require.NoError(t, err)
		if res.NoResponse {
			silent++
			assert.Equal(t, length, o.Status().LogLength)
			continue
		}
		break
	}
	assert.Equal(t, cfg.SynthesisEvery-1, silent)
	assert.Equal(t, persona.FacilitatorID, res.Speaker)
	assert.True(t, res.Forced)
	turns := o.Transcript()
	assert.Equal(t, KindSynthesis, turns[len(turns)-1].Kind)
}

func TestOrchestrator_ConsensusCloses(t *testing.T) {
	ctx := testutil.TestContext(t)
	registry := persona.DefaultRegistry()
	deps, sink, _ := newTestDeps(registry, debateProvider(registry, pricingScores))
	deps.Scorer = fixedScores(pricingScores)

	o, err := NewOrchestrator(deps, DefaultConfig())
	require.NoError(t, err)
	_, err = o.Start(ctx, StartRequest{Objective: "Pick a name"})
	require.NoError(t, err)
	_, err = o.AdvanceTurn(ctx)
	require.NoError(t, err)
	_, err = o.AdvanceTurn(ctx)
	require.NoError(t, err)
	_, err = o.SubmitHumanMessage(ctx, "Agreed, let's go with Nova.")
	require.NoError(t, err)
	_, err = o.SubmitHumanMessage(ctx, "Sounds good to everyone I think.")
	require.NoError(t, err)

	res, err := o.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, CloseConsensus, res.CloseReason)
	assert.Contains(t, res.Phases, PhaseCloseAndSynthesize)
	assert.NotContains(t, res.Phases, PhaseSelect)

	end := sink.ofType(EventEnd)
	require.Len(t, end, 1)
	assert.Equal(t, o.ID(), end[0].SessionID)
	assert.Contains(t, end[0].Summary, "consensus")
}

func TestOrchestrator_FinalSynthesisMarkerCloses(t *testing.T) {
	ctx := testutil.TestContext(t)
	registry := persona.DefaultRegistry()
	deps, _, _ := newTestDeps(registry, mocks.NewSuccessProvider("Here is my final synthesis of the debate."))
	deps.Scorer = fixedScores(map[string]float64{persona.FacilitatorID: 99})

	o, err := NewOrchestrator(deps, DefaultConfig())
	require.NoError(t, err)
	_, err = o.Start(ctx, StartRequest{Objective: "Wrap up"})
	require.NoError(t, err)

	res, err := o.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.False(t, res.Closed)

	res, err = o.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, CloseFinalSynthesis, res.CloseReason)
}

func TestOrchestrator_EventsAndPhases(t *testing.T) {
	ctx := testutil.TestContext(t)
	registry := persona.DefaultRegistry()
	deps, sink, _ := newTestDeps(registry, debateProvider(registry, pricingScores))
	deps.Scorer = fixedScores(pricingScores)

	o, err := NewOrchestrator(deps, DefaultConfig(), WithSessionID("session-1"))
	require.NoError(t, err)
	assert.Equal(t, "session-1", o.ID())
	_, err = o.Start(ctx, StartRequest{Objective: "Hiring plan"})
	require.NoError(t, err)
	_, err = o.AdvanceTurn(ctx)
	require.NoError(t, err)
	res, err := o.AdvanceTurn(ctx)
	require.NoError(t, err)

	assert.Equal(t, []RoundPhase{
		PhaseIdle, PhaseBuildContext, PhaseCheckClose, PhaseScoreCandidates,
		PhaseSelect, PhaseGenerate, PhaseAppend, PhaseIdle,
	}, res.Phases)
	assert.Equal(t, persona.StrategistID, res.Speaker)

	turns := sink.ofType(EventTurn)
	require.Len(t, turns, 3)
	for i, e := range turns {
		require.NotNil(t, e.Turn)
		assert.Equal(t, i, *e.Turn)
		assert.Equal(t, "session-1", e.SessionID)
	}
	assert.Equal(t, persona.StrategistID, turns[2].Agent)
}

func TestOrchestrator_OrgContextReachesPrompts(t *testing.T) {
	ctx := testutil.TestContext(t)
	registry := persona.DefaultRegistry()
	provider := mocks.NewSuccessProvider("We should account for the retail focus.")
	deps, _, _ := newTestDeps(registry, provider)

	o, err := NewOrchestrator(deps, DefaultConfig())
	require.NoError(t, err)
	_, err = o.Start(ctx, StartRequest{
		Objective: "Expansion",
		Org:       OrgContext{CompanyName: "Acme", Industry: "Retail"},
		Model:     "gpt-test",
	})
	require.NoError(t, err)
	_, err = o.AdvanceTurn(ctx)
	require.NoError(t, err)

	req := provider.GetLastCall().Request
	assert.Equal(t, "gpt-test", req.Model)
	assert.Contains(t, req.Messages[0].Content, "- Company: Acme")
	assert.Contains(t, req.Messages[0].Content, "IMPORTANT")
}

func TestNewOrchestrator_Validation(t *testing.T) {
	_, err := NewOrchestrator(Deps{}, DefaultConfig())
	testutil.AssertErrorCode(t, err, types.ErrInvalidPersona)

	cfg := DefaultConfig()
	cfg.Scoring.Weights.Expertise = 50
	_, err = NewOrchestrator(Deps{Personas: persona.DefaultRegistry()}, cfg)
	testutil.AssertErrorCode(t, err, types.ErrInvalidRequest)
}

func TestOrchestrator_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	registry := persona.DefaultRegistry()
	deps, _, _ := newTestDeps(registry, debateProvider(registry, pricingScores))
	deps.Scorer = fixedScores(pricingScores)

	o, err := NewOrchestrator(deps, DefaultConfig())
	require.NoError(t, err)
	_, err = o.Start(ctx, StartRequest{Objective: "Roadmap", Org: OrgContext{Industry: "Fintech"}})
	require.NoError(t, err)
	_, err = o.AdvanceTurn(ctx)
	require.NoError(t, err)
	_, err = o.SubmitHumanMessage(ctx, "What ships first?")
	require.NoError(t, err)

	snap := o.Snapshot()
	restored, err := NewOrchestrator(deps, DefaultConfig(), WithSessionID(o.ID()))
	require.NoError(t, err)
	require.NoError(t, restored.Restore(snap))

	assert.Equal(t, o.Status(), restored.Status())
	assert.Equal(t, o.Transcript(), restored.Transcript())

	res, err := restored.AdvanceTurn(ctx)
	require.NoError(t, err)
	assert.Equal(t, persona.StrategistID, res.Speaker)

	bad := snap
	bad.Turns = append([]Turn(nil), snap.Turns...)
	bad.Turns[1].Index = 7
	testutil.AssertErrorCode(t, restored.Restore(bad), types.ErrSnapshotCorrupted)

	bad = Snapshot{Active: true}
	testutil.AssertErrorCode(t, restored.Restore(bad), types.ErrSnapshotCorrupted)
}

package conversation

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/testutil/mocks"
	"github.com/BaSui01/debatehub/types"
)

// randomScorer draws fresh scores each call; ties are frequent on purpose.
func randomScorer(seed uint64, available bool) *stubScorer {
	rnd := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return &stubScorer{
		available: available,
		score: func(persona.Persona) float64 {
			return float64(rnd.IntN(5) * 25)
		},
	}
}

func TestProperty_NoConsecutiveRepeatWithoutOverride(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		registry := persona.DefaultRegistry()
		deps, _, _ := newTestDeps(registry, mocks.NewSuccessProvider("A point on the api and pricing."))
		deps.Scorer = randomScorer(rapid.Uint64().Draw(rt, "seed"), rapid.Bool().Draw(rt, "scorer_available"))

		cfg := DefaultConfig()
		cfg.MaxTurns = rapid.IntRange(3, 25).Draw(rt, "max_turns")
		o, err := NewOrchestrator(deps, cfg)
		require.NoError(rt, err)
		_, err = o.Start(ctx, StartRequest{Objective: "Decide the roadmap"})
		require.NoError(rt, err)

		forced := map[int]bool{}
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps && o.Status().Active; i++ {
			if rapid.IntRange(0, 3).Draw(rt, "op") == 0 {
				_, err := o.SubmitHumanMessage(ctx, "What about the database?")
				require.NoError(rt, err)
				continue
			}
			res, err := o.AdvanceTurn(ctx)
			require.NoError(rt, err)
			if !res.NoResponse {
				forced[res.TurnIndex] = res.Forced
			}
		}

		turns := o.Transcript()
		for i := 1; i < len(turns); i++ {
			prev, cur := turns[i-1], turns[i]
			if cur.IsHuman() || prev.Speaker != cur.Speaker {
				continue
			}
			require.Truef(rt, forced[cur.Index],
				"turn %d repeats %s without override", cur.Index, cur.Speaker)
		}
	})
}

func TestProperty_StatusMatchesLog(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		registry := persona.DefaultRegistry()
		deps, _, _ := newTestDeps(registry, mocks.NewSuccessProvider("Noted on the market."))
		deps.Scorer = randomScorer(rapid.Uint64().Draw(rt, "seed"), true)

		o, err := NewOrchestrator(deps, DefaultConfig())
		require.NoError(rt, err)
		_, err = o.Start(ctx, StartRequest{Objective: "Pick a market"})
		require.NoError(rt, err)

		ops := rapid.SliceOfN(rapid.SampledFrom([]string{"advance", "human", "empty"}), 1, 30).Draw(rt, "ops")
		for _, op := range ops {
			before := o.Status()
			switch op {
			case "advance":
				_, err = o.AdvanceTurn(ctx)
			case "human":
				_, err = o.SubmitHumanMessage(ctx, "A question about revenue")
			case "empty":
				_, err = o.SubmitHumanMessage(ctx, "   ")
				require.True(rt, types.IsErrorCode(err, types.ErrEmptyInput) || types.IsErrorCode(err, types.ErrSessionInactive))
				require.Equal(rt, before.TurnCount, o.Status().TurnCount)
				err = nil
			}
			if err != nil {
				require.True(rt, types.IsErrorCode(err, types.ErrSessionInactive))
				require.False(rt, before.Active)
			}

			status := o.Status()
			turns := o.Transcript()
			require.Equal(rt, len(turns), status.LogLength)
			require.Equal(rt, turns[len(turns)-1].Speaker, status.LastSpeaker)
			require.Equal(rt, len(turns)-1, status.TurnCount)
		}
	})
}

func TestProperty_LogJSONRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		log := NewLog()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		speakers := []string{HumanSpeaker, persona.FacilitatorID, persona.StrategistID, persona.TechID}
		kinds := []TurnKind{KindHuman, KindAgent, KindSynthesis, KindClosing, KindOpening}

		n := rapid.IntRange(0, 30).Draw(rt, "turns")
		for i := 0; i < n; i++ {
			log.Append(
				rapid.SampledFrom(speakers).Draw(rt, "speaker"),
				anyText().Draw(rt, "name"),
				anyText().Draw(rt, "content"),
				rapid.SampledFrom(kinds).Draw(rt, "kind"),
				base.Add(time.Duration(i)*time.Second),
			)
		}

		data, err := json.Marshal(log)
		require.NoError(rt, err)
		restored := NewLog()
		require.NoError(rt, json.Unmarshal(data, restored))

		want, got := log.Turns(), restored.Turns()
		require.Equal(rt, len(want), len(got))
		for i := range want {
			require.Equal(rt, want[i].Index, got[i].Index)
			require.Equal(rt, want[i].Speaker, got[i].Speaker)
			require.Equal(rt, want[i].SpeakerName, got[i].SpeakerName)
			require.Equal(rt, want[i].Content, got[i].Content)
			require.Equal(rt, want[i].Kind, got[i].Kind)
			require.True(rt, want[i].Timestamp.Equal(got[i].Timestamp))
		}
	})
}

// anyText mixes valid strings with raw byte sequences that are often not UTF-8.
func anyText() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		if rapid.Bool().Draw(t, "raw") {
			return string(rapid.SliceOf(rapid.Byte()).Draw(t, "bytes"))
		}
		return rapid.String().Draw(t, "text")
	})
}

func TestProperty_SnapshotJSONRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		registry := persona.DefaultRegistry()
		deps, _, _ := newTestDeps(registry, mocks.NewSuccessProvider("Noted on the market."))
		deps.Scorer = randomScorer(rapid.Uint64().Draw(rt, "seed"), true)

		o, err := NewOrchestrator(deps, DefaultConfig())
		require.NoError(rt, err)
		_, err = o.Start(ctx, StartRequest{
			Objective: "Plan " + anyText().Draw(rt, "objective"),
			Org:       OrgContext{CompanyName: anyText().Draw(rt, "company")},
		})
		require.NoError(rt, err)

		steps := rapid.IntRange(0, 10).Draw(rt, "steps")
		for i := 0; i < steps && o.Status().Active; i++ {
			if rapid.Bool().Draw(rt, "human") {
				if _, err := o.SubmitHumanMessage(ctx, anyText().Draw(rt, "message")); err != nil {
					var typed *types.Error
					require.ErrorAs(rt, err, &typed)
					require.Equal(rt, types.ErrEmptyInput, typed.Code)
				}
				continue
			}
			_, err := o.AdvanceTurn(ctx)
			require.NoError(rt, err)
		}

		data, err := json.Marshal(o.Snapshot())
		require.NoError(rt, err)
		var snap Snapshot
		require.NoError(rt, json.Unmarshal(data, &snap))

		restored, err := NewOrchestrator(deps, DefaultConfig(), WithSessionID(o.ID()))
		require.NoError(rt, err)
		require.NoError(rt, restored.Restore(snap))

		require.Equal(rt, o.Status(), restored.Status())
		require.Equal(rt, o.Snapshot().Org, restored.Snapshot().Org)
		want, got := o.Transcript(), restored.Transcript()
		require.Equal(rt, len(want), len(got))
		for i := range want {
			require.Equal(rt, want[i].Content, got[i].Content)
			require.Equal(rt, want[i].SpeakerName, got[i].SpeakerName)
			require.Equal(rt, want[i].Kind, got[i].Kind)
		}
	})
}

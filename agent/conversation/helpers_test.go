package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/llm"
	"github.com/BaSui01/debatehub/rag"
	"github.com/BaSui01/debatehub/testutil/fixtures"
	"github.com/BaSui01/debatehub/testutil/mocks"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) ofType(typ string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// stubScorer returns scores from a function; it never calls a model.
type stubScorer struct {
	mu        sync.Mutex
	available bool
	score     func(p persona.Persona) float64
	calls     int
}

func (s *stubScorer) Score(_ context.Context, req ScoreRequest) RelevanceScore {
	// 选择器并发调用 Score，score 函数可能持有非并发安全的状态
	s.mu.Lock()
	s.calls++
	score := s.score(req.Persona)
	s.mu.Unlock()
	return RelevanceScore{
		PersonaID: req.Persona.ID,
		Score:     score,
		Rationale: "stub score for " + req.Persona.ID,
	}
}

func (s *stubScorer) Available() bool { return s.available }

func fixedScores(scores map[string]float64) *stubScorer {
	return &stubScorer{
		available: true,
		score:     func(p persona.Persona) float64 { return scores[p.ID] },
	}
}

type staticRetriever struct {
	results []rag.ScoredText
	err     error
	queries []string
}

func (r *staticRetriever) Retrieve(_ context.Context, query string, topK int) ([]rag.ScoredText, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return nil, r.err
	}
	if topK < len(r.results) {
		return r.results[:topK], nil
	}
	return r.results, nil
}

type countingRecorder struct {
	mu        sync.Mutex
	fallbacks map[string]int
	closed    []string
	rounds    map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{fallbacks: map[string]int{}, rounds: map[string]int{}}
}

func (r *countingRecorder) RecordRound(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds[outcome]++
}

func (r *countingRecorder) RecordSelection(string, string, float64) {}

func (r *countingRecorder) RecordFallback(component, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[component]++
}

func (r *countingRecorder) RecordSessionClosed(reason string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, reason)
}

// debateProvider answers scoring requests from scores and generation
// requests with a short on-topic line per persona.
func debateProvider(registry *persona.Registry, scores map[string]float64) *mocks.MockProvider {
	var mu sync.Mutex
	counter := 0
	return mocks.NewMockProvider().WithReplyFunc(func(req *llm.ChatRequest) (string, error) {
		if fixtures.IsScoringRequest(req) {
			p, ok := fixtures.ScoredPersona(req, registry)
			if !ok {
				return "", fmt.Errorf("unknown persona in scoring prompt")
			}
			return fixtures.ScoreReply(scores[p.ID], p.Name+" fits the topic"), nil
		}
		return generationReply(req, &mu, &counter), nil
	})
}

func generationReply(req *llm.ChatRequest, mu *sync.Mutex, counter *int) string {
	mu.Lock()
	*counter++
	n := *counter
	mu.Unlock()

	last := fixtures.LastUserContent(req)
	switch {
	case strings.HasPrefix(last, "Open the meeting"):
		return "Today we must define pricing for a B2B SaaS tool. We need a model and tiers. Strategist, Tech Lead, your views?"
	case strings.HasPrefix(last, "Formalize the FINAL SYNTHESIS"):
		return "Final synthesis: tiered pricing with a limited free plan. Next step is a pilot."
	case strings.Contains(last, "quick synthesis"):
		return "Quick recap of the pricing options raised so far."
	}
	if strings.Contains(fixtures.SystemPrompt(req), "freemium") || strings.Contains(strings.Join(messageContents(req), " "), "freemium") {
		return fmt.Sprintf("Freemium works for B2B SaaS when the paid tier gates collaboration. Pricing must follow value. Point %d.", n)
	}
	return fmt.Sprintf("Point %d on pricing tiers and seat limits.", n)
}

func messageContents(req *llm.ChatRequest) []string {
	out := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		out = append(out, m.Content)
	}
	return out
}

func newTestDeps(registry *persona.Registry, provider llm.Provider) (Deps, *recordingSink, *fakeClock) {
	sink := &recordingSink{}
	clock := newFakeClock()
	return Deps{
		Personas:  registry,
		Completer: NewProviderCompleter(provider, "test-model"),
		Clock:     clock.Now,
		Events:    sink,
	}, sink, clock
}

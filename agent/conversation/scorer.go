package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonrepair"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/types"
)

// RelevanceScore is one persona's fitness to speak next, in [0,100].
type RelevanceScore struct {
	PersonaID string  `json:"persona_id"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
	Degraded  bool    `json:"degraded,omitempty"`
}

// ScoreRequest carries what a scorer sees for one candidate.
type ScoreRequest struct {
	Persona   persona.Persona
	Objective string
	Context   BuiltContext
	Model     string
}

// Scorer is the primary, probabilistic selection tier.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) RelevanceScore
	// Available is the capability check that decides between tiers.
	Available() bool
}

// LLMScorer asks a chat model for a structured relevance judgment.
type LLMScorer struct {
	completer Completer
	cfg       ScoringConfig
	recorder  Recorder
	logger    *zap.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewLLMScorer creates a scorer. rnd drives fallback scores; nil seeds randomly.
func NewLLMScorer(completer Completer, cfg ScoringConfig, rnd *rand.Rand, recorder Recorder, logger *zap.Logger) *LLMScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &LLMScorer{
		completer: completer,
		cfg:       cfg,
		recorder:  recorder,
		logger:    logger.With(zap.String("component", "relevance_scorer")),
		rnd:       rnd,
	}
}

func (s *LLMScorer) Available() bool {
	if s.completer == nil {
		return false
	}
	if a, ok := s.completer.(interface{ Available() bool }); ok {
		return a.Available()
	}
	return true
}

func (s *LLMScorer) Score(ctx context.Context, req ScoreRequest) RelevanceScore {
	ctx, span := tracer.Start(ctx, "conversation.score")
	span.SetAttributes(attribute.String("persona.id", req.Persona.ID))
	defer span.End()

	if s.completer == nil {
		return s.fallback(req.Persona.ID, types.NewError(types.ErrGenerationFailure, "no completer configured"))
	}

	raw, err := s.completer.Complete(ctx, CompletionRequest{
		Model:       req.Model,
		System:      s.systemPrompt(req.Persona),
		Messages:    []types.Message{types.NewUserMessage(s.userPrompt(req))},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		JSON:        true,
		Operation:   "score",
	})
	if err != nil {
		err = types.NewError(types.ErrGenerationFailure, "scoring completion failed").WithCause(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return s.fallback(req.Persona.ID, err)
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable verdict")
		return s.fallback(req.Persona.ID, err)
	}

	span.SetAttributes(attribute.Float64("score", verdict.Score))
	return RelevanceScore{
		PersonaID: req.Persona.ID,
		Score:     verdict.Score,
		Rationale: verdict.Reasoning,
	}
}

func (s *LLMScorer) fallback(personaID string, cause error) RelevanceScore {
	s.mu.Lock()
	score := s.cfg.FallbackMin
	if span := s.cfg.FallbackMax - s.cfg.FallbackMin; span > 0 {
		score += s.rnd.IntN(span + 1)
	}
	s.mu.Unlock()

	s.logger.Warn("relevance scoring degraded to fallback",
		zap.String("persona_id", personaID),
		zap.Int("score", score),
		zap.Error(cause))
	s.recorder.RecordFallback("scorer", string(types.ErrGenerationFailure))

	return RelevanceScore{
		PersonaID: personaID,
		Score:     float64(score),
		Rationale: "fallback score: " + cause.Error(),
		Degraded:  true,
	}
}

func (s *LLMScorer) systemPrompt(p persona.Persona) string {
	w := s.cfg.Weights
	var b strings.Builder
	b.WriteString("You decide whether a meeting participant should speak next.\n\n")
	b.WriteString("PARTICIPANT\n")
	b.WriteString(p.Profile())
	b.WriteString("\n\nSCORING (0-100 total)\n")
	fmt.Fprintf(&b, "- Expertise match with the current topic: 0-%d\n", w.Expertise)
	fmt.Fprintf(&b, "- Timing: is this the right moment for this participant to intervene: 0-%d\n", w.Timing)
	fmt.Fprintf(&b, "- Contribution: would they add something new to unresolved points: 0-%d\n", w.Contribution)
	b.WriteString("\nAnswer ONLY with a JSON object of the form ")
	b.WriteString(`{"score": <number 0-100>, "reasoning": "<one sentence>"}`)
	return b.String()
}

func (s *LLMScorer) userPrompt(req ScoreRequest) string {
	var b strings.Builder
	if req.Objective != "" {
		fmt.Fprintf(&b, "Meeting objective: %s\n\n", req.Objective)
	}
	b.WriteString("Recent conversation:\n")
	b.WriteString(req.Context.Text())
	fmt.Fprintf(&b, "\n\nShould %s speak now?", req.Persona.Name)
	return b.String()
}

type verdict struct {
	Score     *float64 `json:"score"`
	Reasoning string   `json:"reasoning"`
}

type parsedVerdict struct {
	Score     float64
	Reasoning string
}

// parseVerdict decodes {"score","reasoning"} strictly. A syntactically
// broken object gets one repair pass; the repaired text is decoded just as strictly.
func parseVerdict(raw string) (parsedVerdict, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return parsedVerdict{}, types.NewError(types.ErrGenerationFailure, "empty scoring reply")
	}

	v, err := decodeVerdict(raw)
	var syntaxErr *json.SyntaxError
	if err != nil && (errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF)) {
		repaired, rerr := jsonrepair.JSONRepair(raw)
		if rerr == nil {
			v, err = decodeVerdict(repaired)
		}
	}
	if err != nil {
		return parsedVerdict{}, types.NewError(types.ErrGenerationFailure, "malformed scoring reply").WithCause(err)
	}

	switch {
	case v.Score == nil:
		return parsedVerdict{}, types.NewError(types.ErrGenerationFailure, "scoring reply has no score")
	case *v.Score < 0 || *v.Score > 100:
		return parsedVerdict{}, types.Errorf(types.ErrGenerationFailure, "score %v outside [0,100]", *v.Score)
	case strings.TrimSpace(v.Reasoning) == "":
		return parsedVerdict{}, types.NewError(types.ErrGenerationFailure, "scoring reply has no reasoning")
	}
	return parsedVerdict{Score: *v.Score, Reasoning: strings.TrimSpace(v.Reasoning)}, nil
}

func decodeVerdict(raw string) (verdict, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	var v verdict
	if err := dec.Decode(&v); err != nil {
		return verdict{}, err
	}
	if dec.More() {
		return verdict{}, fmt.Errorf("trailing data after scoring object")
	}
	return v, nil
}

package conversation

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/debatehub/agent/persona"
)

// Selection strategies.
const (
	StrategyScoring = "llm_scoring"
	StrategyKeyword = "keyword"
	StrategyDefault = "default_facilitator"
	StrategyForced  = "forced"
	StrategyNone    = "none"

	noAgentAvailable = "no agent available"
	noKeywordMatch   = "no keyword matched the recent conversation"
)

// SelectionRequest is the input of one selection round.
type SelectionRequest struct {
	Log              *Log
	Objective        string
	Context          BuiltContext
	Model            string
	AllowConsecutive bool
}

// Selection is the outcome of one round: a persona, or NoSpeaker.
type Selection struct {
	PersonaID string           `json:"persona_id,omitempty"`
	Rationale string           `json:"rationale"`
	Score     float64          `json:"score"`
	Strategy  string           `json:"strategy"`
	Scores    []RelevanceScore `json:"scores,omitempty"`
	NoSpeaker bool             `json:"no_speaker,omitempty"`
	Degraded  bool             `json:"degraded,omitempty"`
}

// KeywordSelector is the deterministic fallback tier.
type KeywordSelector struct {
	personas *persona.Registry
	matchers map[string]*phraseMatcher
}

// NewKeywordSelector compiles each persona's keyword list.
func NewKeywordSelector(personas *persona.Registry) *KeywordSelector {
	k := &KeywordSelector{
		personas: personas,
		matchers: make(map[string]*phraseMatcher, personas.Len()),
	}
	for _, p := range personas.All() {
		k.matchers[p.ID] = newPhraseMatcher(p.Keywords)
	}
	return k
}

// Select matches keywords against the latest human turn, then the whole
// window. The first persona in registry order with a hit wins.
func (k *KeywordSelector) Select(log *Log, window int, allowConsecutive bool) Selection {
	last := log.LastSpeaker()

	type source struct {
		text      string
		rationale string
	}
	var sources []source
	if h, ok := log.LastHuman(); ok {
		sources = append(sources, source{h.Content, "keyword match in the latest human message"})
	}
	var recent strings.Builder
	for _, t := range log.Window(window) {
		if t.Kind == KindOpening {
			continue
		}
		recent.WriteString(t.Content)
		recent.WriteByte('\n')
	}
	sources = append(sources, source{recent.String(), "keyword match in the recent conversation"})

	for _, src := range sources {
		tokens := tokenize(src.text)
		for _, p := range k.personas.All() {
			if p.ID == last && !allowConsecutive {
				continue
			}
			if k.matchers[p.ID].matchTokens(tokens) {
				return Selection{
					PersonaID: p.ID,
					Rationale: src.rationale,
					Strategy:  StrategyKeyword,
					Degraded:  true,
				}
			}
		}
	}
	return Selection{
		Rationale: noKeywordMatch,
		Strategy:  StrategyNone,
		NoSpeaker: true,
		Degraded:  true,
	}
}

// Selector picks exactly one next speaker, or reports NoSpeaker.
type Selector struct {
	personas *persona.Registry
	scorer   Scorer
	keywords *KeywordSelector
	cfg      ScoringConfig
	logger   *zap.Logger
}

// NewSelector creates a selector. scorer may be nil, which leaves only
// the keyword tier.
func NewSelector(personas *persona.Registry, scorer Scorer, cfg ScoringConfig, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		personas: personas,
		scorer:   scorer,
		keywords: NewKeywordSelector(personas),
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "speaker_selector")),
	}
}

// Select runs the scoring tier when it is available and the keyword tier otherwise.
func (s *Selector) Select(ctx context.Context, req SelectionRequest) Selection {
	if s.scorer == nil || !s.scorer.Available() {
		s.logger.Warn("scoring unavailable, using keyword selection")
		return s.keywords.Select(req.Log, s.cfg.Window, req.AllowConsecutive)
	}

	candidates := s.candidates(req.Log.LastSpeaker(), req.AllowConsecutive)
	if len(candidates) == 0 {
		return Selection{
			PersonaID: s.personas.Facilitator().ID,
			Rationale: noAgentAvailable,
			Strategy:  StrategyDefault,
		}
	}

	scores := make([]RelevanceScore, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.cfg.Concurrency))
	for i, p := range candidates {
		g.Go(func() error {
			scores[i] = s.scorer.Score(gctx, ScoreRequest{
				Persona:   p,
				Objective: req.Objective,
				Context:   req.Context,
				Model:     req.Model,
			})
			scores[i].PersonaID = p.ID
			return nil
		})
	}
	_ = g.Wait()

	best := 0
	degraded := scores[0].Degraded
	for i := 1; i < len(scores); i++ {
		degraded = degraded || scores[i].Degraded
		if scores[i].Score > scores[best].Score {
			best = i
		}
	}

	return Selection{
		PersonaID: scores[best].PersonaID,
		Rationale: scores[best].Rationale,
		Score:     scores[best].Score,
		Strategy:  StrategyScoring,
		Scores:    scores,
		Degraded:  degraded,
	}
}

func (s *Selector) candidates(lastSpeaker string, allowConsecutive bool) []persona.Persona {
	all := s.personas.All()
	out := all[:0]
	for _, p := range all {
		if p.ID == lastSpeaker && !allowConsecutive {
			continue
		}
		out = append(out, p)
	}
	return out
}

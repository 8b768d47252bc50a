package conversation

import (
	"fmt"
	"strings"
)

// ScoringWeights splits the 0-100 relevance scale between the criteria.
type ScoringWeights struct {
	Expertise    int `yaml:"expertise" json:"expertise" env:"EXPERTISE"`
	Timing       int `yaml:"timing" json:"timing" env:"TIMING"`
	Contribution int `yaml:"contribution" json:"contribution" env:"CONTRIBUTION"`
}

// Total returns the sum of the weights.
func (w ScoringWeights) Total() int { return w.Expertise + w.Timing + w.Contribution }

// ScoringConfig tunes the relevance scorer.
type ScoringConfig struct {
	Weights     ScoringWeights `yaml:"weights" json:"weights" env:"WEIGHTS"`
	Temperature float32        `yaml:"temperature" json:"temperature" env:"TEMPERATURE"`
	MaxTokens   int            `yaml:"max_tokens" json:"max_tokens" env:"MAX_TOKENS"`
	FallbackMin int            `yaml:"fallback_min" json:"fallback_min" env:"FALLBACK_MIN"`
	FallbackMax int            `yaml:"fallback_max" json:"fallback_max" env:"FALLBACK_MAX"`
	Concurrency int            `yaml:"concurrency" json:"concurrency" env:"CONCURRENCY"`
	Window      int            `yaml:"window" json:"window" env:"WINDOW"`
	TurnCharCap int            `yaml:"turn_char_cap" json:"turn_char_cap" env:"TURN_CHAR_CAP"`
}

// GenerationConfig tunes the response generator.
type GenerationConfig struct {
	Temperature float32 `yaml:"temperature" json:"temperature" env:"TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens" env:"MAX_TOKENS"`
	Window      int     `yaml:"window" json:"window" env:"WINDOW"`
	Placeholder string  `yaml:"placeholder" json:"placeholder" env:"PLACEHOLDER"`
}

// ConsensusConfig tunes the agreement heuristic.
type ConsensusConfig struct {
	MinHistory  int      `yaml:"min_history" json:"min_history" env:"MIN_HISTORY"`
	Window      int      `yaml:"window" json:"window" env:"WINDOW"`
	MinAgreeing int      `yaml:"min_agreeing" json:"min_agreeing" env:"MIN_AGREEING"`
	Indicators  []string `yaml:"indicators" json:"indicators" env:"INDICATORS"`
}

// RetrievalConfig bounds the grounding section of the generation context.
type RetrievalConfig struct {
	Enabled  bool    `yaml:"enabled" json:"enabled" env:"ENABLED"`
	TopK     int     `yaml:"top_k" json:"top_k" env:"TOP_K"`
	MinScore float64 `yaml:"min_score" json:"min_score" env:"MIN_SCORE"`
	Budget   int     `yaml:"budget" json:"budget" env:"BUDGET"`
}

// Config holds every heuristic of the turn-taking engine.
type Config struct {
	Model                string           `yaml:"model" json:"model" env:"MODEL"`
	MaxTurns             int              `yaml:"max_turns" json:"max_turns" env:"MAX_TURNS"`
	SynthesisEvery       int              `yaml:"synthesis_every" json:"synthesis_every" env:"SYNTHESIS_EVERY"`
	FinalSynthesisMarker string           `yaml:"final_synthesis_marker" json:"final_synthesis_marker" env:"FINAL_SYNTHESIS_MARKER"`
	Scoring              ScoringConfig    `yaml:"scoring" json:"scoring" env:"SCORING"`
	Generation           GenerationConfig `yaml:"generation" json:"generation" env:"GENERATION"`
	Consensus            ConsensusConfig  `yaml:"consensus" json:"consensus" env:"CONSENSUS"`
	Retrieval            RetrievalConfig  `yaml:"retrieval" json:"retrieval" env:"RETRIEVAL"`
}

// DefaultIndicators are the agreement markers of the consensus heuristic.
func DefaultIndicators() []string {
	return []string{
		"d'accord", "valide", "parfait", "exactement", "je suis pour", "allons-y",
		"approuvé", "validé", "consensus",
		"agreed", "i agree", "we agree", "sounds good", "let's go", "approved", "exactly",
	}
}

// DefaultConfig returns the stock heuristics.
func DefaultConfig() Config {
	return Config{
		MaxTurns:             20,
		SynthesisEvery:       5,
		FinalSynthesisMarker: "final synthesis",
		Scoring: ScoringConfig{
			Weights:     ScoringWeights{Expertise: 40, Timing: 30, Contribution: 30},
			Temperature: 0.3,
			MaxTokens:   150,
			FallbackMin: 20,
			FallbackMax: 60,
			Concurrency: 4,
			Window:      5,
			TurnCharCap: 100,
		},
		Generation: GenerationConfig{
			Temperature: 0.8,
			MaxTokens:   150,
			Window:      6,
			Placeholder: "I'm experiencing a technical problem, sorry.",
		},
		Consensus: ConsensusConfig{
			MinHistory:  5,
			Window:      3,
			MinAgreeing: 2,
			Indicators:  DefaultIndicators(),
		},
		Retrieval: RetrievalConfig{
			Enabled:  true,
			TopK:     5,
			MinScore: 0.35,
			Budget:   3000,
		},
	}
}

// Validate checks the heuristics for consistency.
func (c Config) Validate() error {
	var problems []string
	if c.MaxTurns <= 0 {
		problems = append(problems, "max_turns must be > 0")
	}
	if c.SynthesisEvery <= 0 {
		problems = append(problems, "synthesis_every must be > 0")
	}
	if c.Scoring.Weights.Total() != 100 {
		problems = append(problems, fmt.Sprintf("scoring weights must total 100, got %d", c.Scoring.Weights.Total()))
	}
	if c.Scoring.FallbackMin < 0 || c.Scoring.FallbackMax > 100 || c.Scoring.FallbackMin > c.Scoring.FallbackMax {
		problems = append(problems, "scoring fallback range must satisfy 0 <= min <= max <= 100")
	}
	if c.Scoring.Window <= 0 || c.Generation.Window <= 0 {
		problems = append(problems, "context windows must be > 0")
	}
	if c.Consensus.Window <= 0 || c.Consensus.MinAgreeing <= 0 || c.Consensus.MinAgreeing > c.Consensus.Window {
		problems = append(problems, "consensus requires 0 < min_agreeing <= window")
	}
	if c.Retrieval.Budget < 0 || c.Retrieval.TopK < 0 {
		problems = append(problems, "retrieval budget and top_k must not be negative")
	}
	if strings.TrimSpace(c.Generation.Placeholder) == "" {
		problems = append(problems, "generation placeholder is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid conversation config: %s", strings.Join(problems, "; "))
	}
	return nil
}

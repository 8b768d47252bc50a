package persona

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/debatehub/types"
)

// HumanID is reserved for human turns and can never name a persona.
const HumanID = "human"

var idPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Weights are descriptive behavioral traits, each in [0,1].
type Weights struct {
	Openness      float64 `json:"openness" yaml:"openness"`
	Assertiveness float64 `json:"assertiveness" yaml:"assertiveness"`
	Creativity    float64 `json:"creativity" yaml:"creativity"`
	Analytical    float64 `json:"analytical" yaml:"analytical"`
}

// Persona is the static definition of one debate participant.
type Persona struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Role         string   `json:"role" yaml:"role"`
	Description  string   `json:"description,omitempty" yaml:"description"`
	Expertise    []string `json:"expertise" yaml:"expertise"`
	Triggers     []string `json:"triggers,omitempty" yaml:"triggers"`
	Goals        []string `json:"goals,omitempty" yaml:"goals"`
	Weights      Weights  `json:"weights" yaml:"weights"`
	MaxSentences int      `json:"max_sentences" yaml:"max_sentences"`
	MaxWords     int      `json:"max_words,omitempty" yaml:"max_words"`
	Language     string   `json:"language" yaml:"language"`
	Prompt       string   `json:"-" yaml:"prompt"`
	Keywords     []string `json:"keywords,omitempty" yaml:"keywords"`
	Facilitator  bool     `json:"facilitator,omitempty" yaml:"facilitator"`
}

// Validate rejects malformed definitions before any session uses them.
func (p *Persona) Validate() error {
	var problems []string

	switch {
	case p.ID == "":
		problems = append(problems, "id is required")
	case p.ID == HumanID:
		problems = append(problems, fmt.Sprintf("id %q is reserved", HumanID))
	case !idPattern.MatchString(p.ID):
		problems = append(problems, fmt.Sprintf("id %q must match %s", p.ID, idPattern))
	}
	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(p.Prompt) == "" {
		problems = append(problems, "prompt is required")
	}
	if len(p.Expertise) == 0 {
		problems = append(problems, "at least one expertise entry is required")
	}

	for _, w := range []struct {
		name  string
		value float64
	}{
		{"openness", p.Weights.Openness},
		{"assertiveness", p.Weights.Assertiveness},
		{"creativity", p.Weights.Creativity},
		{"analytical", p.Weights.Analytical},
	} {
		if w.value < 0 || w.value > 1 {
			problems = append(problems, fmt.Sprintf("weight %s=%v outside [0,1]", w.name, w.value))
		}
	}

	if p.MaxSentences < 0 || p.MaxWords < 0 {
		problems = append(problems, "length limits must not be negative")
	}
	if p.MaxSentences == 0 && p.MaxWords == 0 {
		problems = append(problems, "a sentence or word limit is required")
	}

	if len(problems) == 0 {
		return nil
	}
	id := p.ID
	if id == "" {
		id = "<unnamed>"
	}
	return types.Errorf(types.ErrInvalidPersona, "persona %s: %s", id, strings.Join(problems, "; "))
}

// ExpertiseSummary joins the expertise tags for prompt use.
func (p *Persona) ExpertiseSummary() string {
	return strings.Join(p.Expertise, ", ")
}

// LengthRule renders the response-length constraint as an instruction.
func (p *Persona) LengthRule() string {
	switch {
	case p.MaxSentences > 0 && p.MaxWords > 0:
		return fmt.Sprintf("at most %d sentences and %d words", p.MaxSentences, p.MaxWords)
	case p.MaxSentences > 0:
		return fmt.Sprintf("at most %d sentences", p.MaxSentences)
	default:
		return fmt.Sprintf("at most %d words", p.MaxWords)
	}
}

// Profile renders the descriptive metadata used to flavor prompts.
func (p *Persona) Profile() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", p.Name, p.Role)
	fmt.Fprintf(&b, "Expertise: %s\n", p.ExpertiseSummary())
	if len(p.Triggers) > 0 {
		fmt.Fprintf(&b, "Speaks up when: %s\n", strings.Join(p.Triggers, "; "))
	}
	fmt.Fprintf(&b, "Traits: openness %.2f, assertiveness %.2f, creativity %.2f, analytical %.2f",
		p.Weights.Openness, p.Weights.Assertiveness, p.Weights.Creativity, p.Weights.Analytical)
	return b.String()
}

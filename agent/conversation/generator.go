package conversation

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/types"
)

// Phase selects the closing instruction of a generation request.
type Phase string

const (
	PhaseTurn           Phase = "turn"
	PhaseFraming        Phase = "framing"
	PhaseQuickSynthesis Phase = "quick_synthesis"
	PhaseFinalSynthesis Phase = "final_synthesis"
)

// GenerateRequest is everything the generator needs for one contribution.
type GenerateRequest struct {
	Persona   persona.Persona
	Log       *Log
	Objective string
	Context   BuiltContext
	Phase     Phase
	Model     string
}

// Generation is the produced contribution.
type Generation struct {
	Text     string `json:"text"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Generator produces a persona's next contribution.
type Generator struct {
	completer Completer
	cfg       GenerationConfig
	recorder  Recorder
	logger    *zap.Logger
}

// NewGenerator creates a response generator.
func NewGenerator(completer Completer, cfg GenerationConfig, recorder Recorder, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Generator{
		completer: completer,
		cfg:       cfg,
		recorder:  recorder,
		logger:    logger.With(zap.String("component", "response_generator")),
	}
}

// Generate never fails: errors and empty output yield the placeholder.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) Generation {
	ctx, span := tracer.Start(ctx, "conversation.generate")
	span.SetAttributes(
		attribute.String("persona.id", req.Persona.ID),
		attribute.String("phase", string(req.Phase)),
	)
	defer span.End()

	if g.completer == nil {
		return g.placeholder(req.Persona.ID, types.NewError(types.ErrGenerationFailure, "no completer configured"))
	}

	text, err := g.completer.Complete(ctx, CompletionRequest{
		Model:       req.Model,
		System:      g.systemPrompt(req),
		Messages:    g.messages(req),
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		Operation:   "generate",
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty completion")
	}
	if err != nil {
		err = types.NewError(types.ErrGenerationFailure, "response generation failed").WithCause(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return g.placeholder(req.Persona.ID, err)
	}

	text = ClampLength(stripSpeakerTag(strings.TrimSpace(text), req.Persona.Name), req.Persona.MaxSentences, req.Persona.MaxWords)
	return Generation{Text: text}
}

func (g *Generator) placeholder(personaID string, cause error) Generation {
	g.logger.Warn("generation degraded to placeholder",
		zap.String("persona_id", personaID),
		zap.Error(cause))
	g.recorder.RecordFallback("generator", string(types.ErrGenerationFailure))
	return Generation{Text: g.cfg.Placeholder, Degraded: true}
}

func (g *Generator) systemPrompt(req GenerateRequest) string {
	p := req.Persona
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.Prompt))
	if p.Language != "" {
		fmt.Fprintf(&b, "\n\nAlways answer in %s.", p.Language)
	}
	fmt.Fprintf(&b, "\n\n=== MEETING ===\nObjective: %s", req.Objective)
	if req.Context.Preamble != "" {
		b.WriteString("\n\n")
		b.WriteString(req.Context.Preamble)
	}
	if req.Context.References != "" {
		b.WriteString("\n\n")
		b.WriteString(req.Context.References)
	}
	b.WriteString("\n\n=== INSTRUCTIONS ===\n")
	b.WriteString("- React directly to what was just said.\n")
	fmt.Fprintf(&b, "- Speak from your %s viewpoint.\n", p.Role)
	fmt.Fprintf(&b, "- Keep it to %s.\n", p.LengthRule())
	b.WriteString("- Address the other participants by their role when you challenge them.\n")
	b.WriteString("- Keep the objective in mind.")
	return b.String()
}

func (g *Generator) messages(req GenerateRequest) []types.Message {
	window := req.Log.Window(g.cfg.Window)
	msgs := make([]types.Message, 0, len(window)+1)
	for _, t := range window {
		if t.Speaker == req.Persona.ID {
			msgs = append(msgs, types.NewAssistantMessage(t.Render()))
			continue
		}
		msgs = append(msgs, types.NewUserMessage(t.Render()).From(t.Speaker))
	}
	msgs = append(msgs, types.NewUserMessage(instruction(req)))
	return msgs
}

func instruction(req GenerateRequest) string {
	switch req.Phase {
	case PhaseFraming:
		return fmt.Sprintf("Open the meeting, %s: frame the objective %q, say what must be decided and invite the participants to react.",
			req.Persona.Name, req.Objective)
	case PhaseQuickSynthesis:
		return "Nobody has taken the floor for a while. Give a quick synthesis of the points raised so far and relaunch the discussion."
	case PhaseFinalSynthesis:
		return "Formalize the FINAL SYNTHESIS and close the meeting: decisions taken, open points, next steps."
	default:
		return fmt.Sprintf("Your turn, %s. React now.", req.Persona.Name)
	}
}

// stripSpeakerTag removes a "[Name]:" prefix the model may echo back.
func stripSpeakerTag(text, name string) string {
	prefix := "[" + name + "]:"
	if strings.HasPrefix(text, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(text, prefix))
	}
	return text
}

// ClampLength cuts text to at most maxSentences sentences and maxWords
// words. A non-positive limit is not enforced.
func ClampLength(text string, maxSentences, maxWords int) string {
	text = strings.TrimSpace(text)
	if maxSentences > 0 {
		if sentences := splitSentences(text); len(sentences) > maxSentences {
			text = strings.Join(sentences[:maxSentences], " ")
		}
	}
	if maxWords > 0 {
		if words := strings.Fields(text); len(words) > maxWords {
			text = strings.Join(words[:maxWords], " ") + ellipsis
		}
	}
	return text
}

// splitSentences cuts after runs of '.', '!' or '?' that are followed by
// whitespace or the end of the text.
func splitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var (
		out   []string
		start int
	)
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		j := i
		for j+1 < len(runes) && isTerminator(runes[j+1]) {
			j++
		}
		if j+1 == len(runes) || unicode.IsSpace(runes[j+1]) {
			if s := strings.TrimSpace(string(runes[start : j+1])); s != "" {
				out = append(out, s)
			}
			start = j + 1
		}
		i = j
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

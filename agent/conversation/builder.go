package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/rag"
	"github.com/BaSui01/debatehub/types"
)

const (
	referenceHeader = "=== RELEVANT REFERENCE DOCUMENTS ==="
	ellipsis        = "..."
)

// Reference is one retrieved snippet that made it into the context.
type Reference struct {
	Rank      int     `json:"rank"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
	Source    string  `json:"source,omitempty"`
	Truncated bool    `json:"truncated,omitempty"`
}

// BuildOptions selects what one projection of the log contains.
type BuildOptions struct {
	// Window is the number of most recent turns rendered (all when <= 0).
	Window int
	// TurnCharLimit truncates each rendered turn's content (no limit when <= 0).
	TurnCharLimit int
	// Retrieve issues a similarity query with the latest human turn.
	Retrieve bool
}

// BuiltContext is the bounded text handed to a model prompt.
type BuiltContext struct {
	Transcript   string      `json:"transcript"`
	Preamble     string      `json:"preamble,omitempty"`
	References   string      `json:"references,omitempty"`
	Hits         []Reference `json:"hits,omitempty"`
	Degraded     bool        `json:"degraded,omitempty"`
	RetrievalErr error       `json:"-"`
}

// Text joins the non-empty sections.
func (c BuiltContext) Text() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{c.Preamble, c.References, c.Transcript} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Builder projects a conversation log into prompt context.
type Builder struct {
	retriever Retriever
	cfg       RetrievalConfig
	recorder  Recorder
	logger    *zap.Logger
}

// NewBuilder creates a context builder. retriever may be nil.
func NewBuilder(retriever Retriever, cfg RetrievalConfig, recorder Recorder, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Builder{
		retriever: retriever,
		cfg:       cfg,
		recorder:  recorder,
		logger:    logger.With(zap.String("component", "context_builder")),
	}
}

// Build renders the log window, the organizational preamble and, when
// requested, the reference section. Retrieval failures only degrade the result.
func (b *Builder) Build(ctx context.Context, log *Log, org OrgContext, opts BuildOptions) BuiltContext {
	out := BuiltContext{
		Transcript: renderTurns(log.Window(opts.Window), opts.TurnCharLimit),
		Preamble:   org.Format(),
	}

	if !opts.Retrieve || !b.cfg.Enabled || b.retriever == nil {
		return out
	}
	human, ok := log.LastHuman()
	if !ok || strings.TrimSpace(human.Content) == "" {
		return out
	}

	results, err := b.retriever.Retrieve(ctx, human.Content, b.cfg.TopK)
	if err != nil {
		if !types.IsErrorCode(err, types.ErrRetrievalFailure) {
			err = types.NewError(types.ErrRetrievalFailure, "retrieve references").WithCause(err)
		}
		b.logger.Warn("retrieval failed, continuing without references", zap.Error(err))
		b.recorder.RecordFallback("retrieval", string(types.ErrRetrievalFailure))
		out.Degraded = true
		out.RetrievalErr = err
		return out
	}

	out.References, out.Hits = formatReferences(results, b.cfg.MinScore, b.cfg.Budget)
	return out
}

func renderTurns(turns []Turn, charLimit int) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		if charLimit > 0 {
			t.Content = truncateRunes(t.Content, charLimit)
		}
		lines = append(lines, t.Render())
	}
	return strings.Join(lines, "\n")
}

// truncateRunes keeps at most limit runes, marking the cut with "...".
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + ellipsis
}

// formatReferences drops results under minScore and packs the rest, best
// first, into a section of at most budget runes including every label.
func formatReferences(results []rag.ScoredText, minScore float64, budget int) (string, []Reference) {
	kept := make([]rag.ScoredText, 0, len(results))
	for _, r := range results {
		if r.Score >= minScore && strings.TrimSpace(r.Text) != "" {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return "", nil
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	const sep = "\n\n"
	var (
		b    strings.Builder
		hits []Reference
	)
	b.WriteString(referenceHeader)
	used := utf8.RuneCountInString(referenceHeader)
	if used > budget {
		return "", nil
	}

	for i, r := range kept {
		label := fmt.Sprintf("%s[Document %d - Score: %.2f]\n", sep, i+1, r.Score)
		text := strings.TrimSpace(r.Text)
		cost := utf8.RuneCountInString(label) + utf8.RuneCountInString(text)

		ref := Reference{Rank: i + 1, Score: r.Score, Source: r.Source}
		if used+cost <= budget {
			ref.Text = text
		} else {
			room := budget - used - utf8.RuneCountInString(label) - len(ellipsis)
			if room <= 0 {
				break
			}
			ref.Text = string([]rune(text)[:room]) + ellipsis
			ref.Truncated = true
			cost = utf8.RuneCountInString(label) + room + len(ellipsis)
		}

		b.WriteString(label)
		b.WriteString(ref.Text)
		used += cost
		hits = append(hits, ref)
		if ref.Truncated {
			break
		}
	}

	if len(hits) == 0 {
		return "", nil
	}
	return b.String(), hits
}

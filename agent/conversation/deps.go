package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/debatehub/llm"
	"github.com/BaSui01/debatehub/rag"
	"github.com/BaSui01/debatehub/types"
)

// CompletionRequest is one chat completion issued by the scorer or generator.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []types.Message
	Temperature float32
	MaxTokens   int
	JSON        bool
	Operation   string
}

// Completer is the chat-completion capability the engine consumes.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Retriever is the semantic search capability used for grounding.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]rag.ScoredText, error)
}

// Clock returns the wall-clock time stamped on turns.
type Clock func() time.Time

// Recorder receives engine metrics. internal/metrics.Collector implements it.
type Recorder interface {
	RecordRound(outcome string, duration time.Duration)
	RecordSelection(strategy, personaID string, score float64)
	RecordFallback(component, reason string)
	RecordSessionClosed(reason string, turns int)
}

type nopRecorder struct{}

func (nopRecorder) RecordRound(string, time.Duration) {}
func (nopRecorder) RecordSelection(string, string, float64) {}
func (nopRecorder) RecordFallback(string, string) {}
func (nopRecorder) RecordSessionClosed(string, int) {}

// Recorders fans every observation out to each non-nil recorder.
func Recorders(rs ...Recorder) Recorder {
	out := make(multiRecorder, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

type multiRecorder []Recorder

func (m multiRecorder) RecordRound(outcome string, d time.Duration) {
	for _, r := range m {
		r.RecordRound(outcome, d)
	}
}

func (m multiRecorder) RecordSelection(strategy, personaID string, score float64) {
	for _, r := range m {
		r.RecordSelection(strategy, personaID, score)
	}
}

func (m multiRecorder) RecordFallback(component, reason string) {
	for _, r := range m {
		r.RecordFallback(component, reason)
	}
}

func (m multiRecorder) RecordSessionClosed(reason string, turns int) {
	for _, r := range m {
		r.RecordSessionClosed(reason, turns)
	}
}

// Event types published on the session channel.
const (
	EventTurn = "turn"
	EventEnd  = "end"
)

// Event is the payload relayed to live listeners of a session.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"job_id"`
	Agent     string `json:"agent,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	Text      string `json:"text,omitempty"`
	Turn      *int   `json:"turn,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Turns     int    `json:"turns,omitempty"`
}

// EventSink publishes session events. internal/events implements it over Redis.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// ProviderCompleter adapts an llm.Provider to Completer.
type ProviderCompleter struct {
	provider llm.Provider
	model    string
}

// NewProviderCompleter wraps a provider; model is used when a request names none.
func NewProviderCompleter(provider llm.Provider, model string) *ProviderCompleter {
	return &ProviderCompleter{provider: provider, model: model}
}

func (c *ProviderCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := make([]types.Message, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, types.NewSystemMessage(req.System))
	}
	messages = append(messages, req.Messages...)

	model := req.Model
	if model == "" {
		model = c.model
	}
	traceID, _ := types.TraceID(ctx)
	chatReq := &llm.ChatRequest{
		TraceID:     traceID,
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Metadata:    map[string]string{"operation": req.Operation},
	}
	if sid, ok := types.SessionID(ctx); ok {
		chatReq.Metadata["session_id"] = sid
	}
	if req.JSON {
		chatReq.ResponseFormat = llm.ResponseFormatJSONObject
	}

	resp, err := c.provider.Completion(ctx, chatReq)
	if err != nil {
		return "", err
	}
	return llm.FirstContent(resp)
}

// Available reports whether the wrapped provider currently accepts calls.
func (c *ProviderCompleter) Available() bool {
	if a, ok := c.provider.(interface{ Available() bool }); ok {
		return a.Available()
	}
	return true
}

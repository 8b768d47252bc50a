package conversation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/types"
)

var tracer = otel.Tracer("github.com/BaSui01/debatehub/agent/conversation")

// RoundPhase is one state of the per-round state machine.
type RoundPhase string

const (
	PhaseIdle               RoundPhase = "IDLE"
	PhaseBuildContext       RoundPhase = "BUILD_CONTEXT"
	PhaseCheckClose         RoundPhase = "CHECK_CLOSE"
	PhaseCloseAndSynthesize RoundPhase = "CLOSE_AND_SYNTHESIZE"
	PhaseScoreCandidates    RoundPhase = "SCORE_CANDIDATES"
	PhaseSelect             RoundPhase = "SELECT"
	PhaseGenerate           RoundPhase = "GENERATE"
	PhaseAppend             RoundPhase = "APPEND"
)

// Session modes reported by Status.
const (
	ModeTurnByTurn = "turn_by_turn"
	ModeAutomated  = "automated"
)

// Deps are the capabilities an orchestrator consumes.
type Deps struct {
	Personas  *persona.Registry
	Completer Completer
	Retriever Retriever
	// Scorer overrides the default LLMScorer built on Completer.
	Scorer   Scorer
	Clock    Clock
	Logger   *zap.Logger
	Recorder Recorder
	Events   EventSink
	Rand     *rand.Rand
}

// StartRequest opens a meeting.
type StartRequest struct {
	Objective string     `json:"objective"`
	Org       OrgContext `json:"org,omitempty"`
	Model     string     `json:"model,omitempty"`
}

// RoundResult is what one AdvanceTurn produced.
type RoundResult struct {
	Speaker     string       `json:"speaker,omitempty"`
	SpeakerName string       `json:"speaker_name,omitempty"`
	Text        string       `json:"text,omitempty"`
	Rationale   string       `json:"rationale"`
	TurnIndex   int          `json:"turn_index"`
	Score       float64      `json:"score,omitempty"`
	Strategy    string       `json:"strategy"`
	Forced      bool         `json:"forced,omitempty"`
	Closed      bool         `json:"closed,omitempty"`
	CloseReason CloseReason  `json:"close_reason,omitempty"`
	NoResponse  bool         `json:"no_response,omitempty"`
	Degraded    bool         `json:"degraded,omitempty"`
	Phases      []RoundPhase `json:"phases"`
}

// Status is the read-only view of a session.
type Status struct {
	SessionID   string      `json:"session_id"`
	Objective   string      `json:"objective,omitempty"`
	TurnCount   int         `json:"turn_count"`
	Active      bool        `json:"active"`
	Started     bool        `json:"started"`
	LastSpeaker string      `json:"last_speaker,omitempty"`
	LogLength   int         `json:"log_length"`
	CloseReason CloseReason `json:"close_reason,omitempty"`
	Mode        string      `json:"mode"`
}

// Summary describes a meeting for reports and the end event.
type Summary struct {
	Objective    string      `json:"objective"`
	Turns        int         `json:"turns"`
	Participants []string    `json:"participants"`
	CloseReason  CloseReason `json:"close_reason,omitempty"`
	Active       bool        `json:"active"`
}

// Option customizes an orchestrator.
type Option func(*Orchestrator)

// WithSessionID fixes the session identifier instead of generating one.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) { o.id = id }
}

// Orchestrator is the per-session state machine. Rounds and human
// submissions are serialized by its mutex.
type Orchestrator struct {
	id        string
	personas  *persona.Registry
	cfg       Config
	builder   *Builder
	selector  *Selector
	generator *Generator
	consensus *ConsensusDetector
	clock     Clock
	events    EventSink
	recorder  Recorder
	logger    *zap.Logger

	mu           sync.RWMutex
	started      bool
	active       bool
	objective    string
	org          OrgContext
	model        string
	log          *Log
	silentRounds int
	closeReason  CloseReason
	mode         string
	startedAt    time.Time
	updatedAt    time.Time
}

// NewOrchestrator wires the engine components for one session.
func NewOrchestrator(deps Deps, cfg Config, opts ...Option) (*Orchestrator, error) {
	if deps.Personas == nil || deps.Personas.Len() == 0 {
		return nil, types.NewError(types.ErrInvalidPersona, "persona registry is empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, err.Error())
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	scorer := deps.Scorer
	if scorer == nil && deps.Completer != nil {
		scorer = NewLLMScorer(deps.Completer, cfg.Scoring, deps.Rand, deps.Recorder, deps.Logger)
	}

	o := &Orchestrator{
		id:        uuid.NewString(),
		personas:  deps.Personas,
		cfg:       cfg,
		builder:   NewBuilder(deps.Retriever, cfg.Retrieval, deps.Recorder, deps.Logger),
		selector:  NewSelector(deps.Personas, scorer, cfg.Scoring, deps.Logger),
		generator: NewGenerator(deps.Completer, cfg.Generation, deps.Recorder, deps.Logger),
		consensus: NewConsensusDetector(cfg.Consensus),
		clock:     deps.Clock,
		events:    deps.Events,
		recorder:  deps.Recorder,
		log:       NewLog(),
		mode:      ModeTurnByTurn,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = deps.Logger.With(
		zap.String("component", "orchestrator"),
		zap.String("session_id", o.id))
	return o, nil
}

// ID returns the session identifier.
func (o *Orchestrator) ID() string { return o.id }

// Start initializes an empty log and appends the facilitator's opening
// turn. Starting a running session restarts it.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (Status, error) {
	objective := strings.TrimSpace(validUTF8(req.Objective))
	if objective == "" {
		return Status{}, types.NewError(types.ErrEmptyInput, "objective is empty")
	}

	o.mu.Lock()
	o.resetLocked()
	o.started = true
	o.active = true
	o.objective = objective
	o.org = req.Org.sanitized()
	o.model = req.Model
	if o.model == "" {
		o.model = o.cfg.Model
	}
	o.startedAt = o.clock()

	f := o.personas.Facilitator()
	turn := o.appendLocked(f.ID, f.Name, openingText(objective, o.personas), KindOpening)
	status := o.statusLocked()
	o.mu.Unlock()

	o.logger.Info("session started",
		zap.String("objective", objective),
		zap.Int("personas", o.personas.Len()))
	o.publishTurn(ctx, turn)
	return status, nil
}

func openingText(objective string, personas *persona.Registry) string {
	names := make([]string, 0, personas.Len())
	for _, p := range personas.All() {
		if !p.Facilitator {
			names = append(names, p.Name)
		}
	}
	return fmt.Sprintf("Welcome. Today's objective: %s. Around the table: %s. The floor is open.",
		objective, strings.Join(names, ", "))
}

// SubmitHumanMessage appends a human turn without triggering any agent.
func (o *Orchestrator) SubmitHumanMessage(ctx context.Context, text string) (Turn, error) {
	o.mu.Lock()
	if err := o.checkActiveLocked(); err != nil {
		o.mu.Unlock()
		return Turn{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		o.mu.Unlock()
		return Turn{}, types.NewError(types.ErrEmptyInput, "message is empty")
	}
	turn := o.appendLocked(HumanSpeaker, "Human", text, KindHuman)
	o.mu.Unlock()

	o.logger.Debug("human message appended", zap.Int("turn_index", turn.Index))
	o.publishTurn(ctx, turn)
	return turn, nil
}

// AdvanceTurn runs exactly one round of the state machine. Only a closed,
// reset or never-started session makes it fail; every model or retrieval
// failure degrades to a substitute value.
func (o *Orchestrator) AdvanceTurn(ctx context.Context) (RoundResult, error) {
	ctx, span := tracer.Start(ctx, "conversation.advance_turn")
	span.SetAttributes(attribute.String("session.id", o.id))
	defer span.End()

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkActiveLocked(); err != nil {
		return RoundResult{}, err
	}

	began := time.Now()
	res := RoundResult{Phases: []RoundPhase{PhaseIdle, PhaseBuildContext}}
	scoringCtx := o.builder.Build(ctx, o.log, o.org, BuildOptions{
		Window:        o.cfg.Scoring.Window,
		TurnCharLimit: o.cfg.Scoring.TurnCharCap,
	})

	res.Phases = append(res.Phases, PhaseCheckClose)
	if reason := closeReason(o.log, o.cfg, o.consensus, o.personas.Facilitator().ID); reason != CloseNone {
		res = o.closeLocked(ctx, res, reason)
		o.recorder.RecordRound("closed", time.Since(began))
		span.SetAttributes(attribute.String("close.reason", string(reason)))
		return res, nil
	}

	facilitator := o.personas.Facilitator()
	phase := PhaseTurn
	var sel Selection
	if o.onlyOpeningLocked() {
		sel = Selection{PersonaID: facilitator.ID, Rationale: "the facilitator opens the meeting", Strategy: StrategyForced}
		phase = PhaseFraming
		res.Phases = append(res.Phases, PhaseSelect)
	} else {
		sel = o.selector.Select(ctx, SelectionRequest{
			Log:       o.log,
			Objective: o.objective,
			Context:   scoringCtx,
			Model:     o.model,
		})
		if sel.Strategy == StrategyScoring {
			res.Phases = append(res.Phases, PhaseScoreCandidates)
		}
		res.Phases = append(res.Phases, PhaseSelect)

		if sel.NoSpeaker {
			o.silentRounds++
			if o.silentRounds < o.cfg.SynthesisEvery {
				o.logger.Debug("no eligible speaker this round", zap.Int("silent_rounds", o.silentRounds))
				res.NoResponse = true
				res.Rationale = sel.Rationale
				res.Strategy = sel.Strategy
				res.Degraded = sel.Degraded
				res.TurnIndex = o.log.Len() - 1
				res.Phases = append(res.Phases, PhaseIdle)
				o.recorder.RecordRound("no_response", time.Since(began))
				return res, nil
			}
			sel = Selection{
				PersonaID: facilitator.ID,
				Rationale: fmt.Sprintf("nobody selected for %d rounds, facilitator synthesizes", o.silentRounds),
				Strategy:  StrategyForced,
				Degraded:  true,
			}
			phase = PhaseQuickSynthesis
		}
	}

	speaker, err := o.personas.Lookup(sel.PersonaID)
	if err != nil {
		return RoundResult{}, err
	}
	res.Forced = sel.Strategy == StrategyForced || sel.Strategy == StrategyDefault

	res.Phases = append(res.Phases, PhaseGenerate)
	gen := o.generateLocked(ctx, speaker, phase)

	res.Phases = append(res.Phases, PhaseAppend)
	kind := KindAgent
	if phase == PhaseQuickSynthesis {
		kind = KindSynthesis
	}
	turn := o.appendLocked(speaker.ID, speaker.Name, gen.Text, kind)
	o.silentRounds = 0
	o.publishTurn(ctx, turn)

	res.Speaker = speaker.ID
	res.SpeakerName = speaker.Name
	res.Text = turn.Content
	res.Rationale = sel.Rationale
	res.TurnIndex = turn.Index
	res.Score = sel.Score
	res.Strategy = sel.Strategy
	res.Degraded = sel.Degraded || gen.Degraded
	res.Phases = append(res.Phases, PhaseIdle)

	o.recorder.RecordSelection(sel.Strategy, speaker.ID, sel.Score)
	o.recorder.RecordRound(string(kind), time.Since(began))
	o.logger.Debug("round completed",
		zap.String("persona_id", speaker.ID),
		zap.Int("turn_index", turn.Index),
		zap.String("strategy", sel.Strategy),
		zap.Bool("degraded", res.Degraded))
	span.SetAttributes(
		attribute.String("persona.id", speaker.ID),
		attribute.String("strategy", sel.Strategy))
	return res, nil
}

func (o *Orchestrator) closeLocked(ctx context.Context, res RoundResult, reason CloseReason) RoundResult {
	res.Phases = append(res.Phases, PhaseCloseAndSynthesize)

	f := o.personas.Facilitator()
	gen := o.generateLocked(ctx, f, PhaseFinalSynthesis)
	turn := o.appendLocked(f.ID, f.Name, gen.Text, KindClosing)
	o.active = false
	o.closeReason = reason

	o.publishTurn(ctx, turn)
	o.publishEnd(ctx)
	o.recorder.RecordSessionClosed(string(reason), o.log.Len())
	o.logger.Info("session closed",
		zap.String("reason", string(reason)),
		zap.Int("turns", o.log.Len()))

	res.Speaker = f.ID
	res.SpeakerName = f.Name
	res.Text = turn.Content
	res.Rationale = "closing: " + string(reason)
	res.TurnIndex = turn.Index
	res.Strategy = StrategyForced
	res.Forced = true
	res.Closed = true
	res.CloseReason = reason
	res.Degraded = gen.Degraded
	return res
}

func (o *Orchestrator) generateLocked(ctx context.Context, speaker persona.Persona, phase Phase) Generation {
	genCtx := o.builder.Build(ctx, o.log, o.org, BuildOptions{
		Window:   o.cfg.Generation.Window,
		Retrieve: true,
	})
	return o.generator.Generate(ctx, GenerateRequest{
		Persona:   speaker,
		Log:       o.log,
		Objective: o.objective,
		Context:   genCtx,
		Phase:     phase,
		Model:     o.model,
	})
}

// Status is read-only.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.statusLocked()
}

func (o *Orchestrator) statusLocked() Status {
	return Status{
		SessionID:   o.id,
		Objective:   o.objective,
		TurnCount:   o.log.TurnCount(),
		Active:      o.active,
		Started:     o.started,
		LastSpeaker: o.log.LastSpeaker(),
		LogLength:   o.log.Len(),
		CloseReason: o.closeReason,
		Mode:        o.mode,
	}
}

// Reset discards the session state; only Start is valid afterwards.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.resetLocked()
	o.mu.Unlock()
	o.logger.Info("session reset")
}

func (o *Orchestrator) resetLocked() {
	o.started = false
	o.active = false
	o.objective = ""
	o.org = OrgContext{}
	o.model = ""
	o.log = NewLog()
	o.silentRounds = 0
	o.closeReason = CloseNone
	o.mode = ModeTurnByTurn
	o.startedAt = time.Time{}
	o.updatedAt = time.Time{}
}

// Stop closes the session without a synthesis turn.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.checkActiveLocked(); err != nil {
		return err
	}
	o.active = false
	o.closeReason = CloseStopped
	o.updatedAt = o.clock()

	o.recorder.RecordSessionClosed(string(CloseStopped), o.log.Len())
	o.logger.Info("session stopped", zap.Int("turns", o.log.Len()))
	o.publishEnd(ctx)
	return nil
}

// Transcript returns a copy of the turns.
func (o *Orchestrator) Transcript() []Turn {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.log.Turns()
}

// Summary describes the meeting so far.
func (o *Orchestrator) Summary() Summary {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.summaryLocked()
}

func (o *Orchestrator) summaryLocked() Summary {
	seen := make(map[string]bool)
	var participants []string
	for _, t := range o.log.turns {
		if t.IsHuman() || seen[t.Speaker] {
			continue
		}
		seen[t.Speaker] = true
		participants = append(participants, t.SpeakerName)
	}
	return Summary{
		Objective:    o.objective,
		Turns:        o.log.Len(),
		Participants: participants,
		CloseReason:  o.closeReason,
		Active:       o.active,
	}
}

func (o *Orchestrator) checkActiveLocked() error {
	if !o.started {
		return types.NewError(types.ErrSessionNotStarted, "session has not been started")
	}
	if !o.active {
		return types.Errorf(types.ErrSessionInactive, "session is closed (%s)", o.closeReason)
	}
	return nil
}

// onlyOpeningLocked reports whether no agent has spoken since the opening.
// Human messages posted before the first round do not count.
func (o *Orchestrator) onlyOpeningLocked() bool {
	for _, t := range o.log.turns {
		if t.Kind != KindOpening && !t.IsHuman() {
			return false
		}
	}
	return true
}

func (o *Orchestrator) appendLocked(speaker, name, content string, kind TurnKind) Turn {
	now := o.clock()
	o.updatedAt = now
	return o.log.Append(speaker, name, content, kind, now)
}

func (o *Orchestrator) publishTurn(ctx context.Context, t Turn) {
	if o.events == nil {
		return
	}
	idx := t.Index
	o.publish(ctx, Event{
		Type:      EventTurn,
		SessionID: o.id,
		Agent:     t.Speaker,
		AgentName: t.SpeakerName,
		Text:      t.Content,
		Turn:      &idx,
	})
}

// publishEnd must be called with the lock held.
func (o *Orchestrator) publishEnd(ctx context.Context) {
	if o.events == nil {
		return
	}
	s := o.summaryLocked()
	o.publish(ctx, Event{
		Type:      EventEnd,
		SessionID: o.id,
		Summary: fmt.Sprintf("Meeting on %q closed (%s) after %d turns. Participants: %s.",
			s.Objective, s.CloseReason, s.Turns, strings.Join(s.Participants, ", ")),
		Turns: s.Turns,
	})
}

func (o *Orchestrator) publish(ctx context.Context, e Event) {
	if err := o.events.Publish(ctx, e); err != nil {
		o.logger.Warn("event publish failed", zap.String("type", e.Type), zap.Error(err))
	}
}

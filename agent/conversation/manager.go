package conversation

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/types"
)

// SnapshotStore persists session snapshots outside the process.
// LoadSnapshot reports a missing session with SESSION_NOT_FOUND.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LoadSnapshot(ctx context.Context, id string) (Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// TranscriptSink archives transcripts, e.g. into SQL.
type TranscriptSink interface {
	SaveTranscript(ctx context.Context, snap Snapshot) error
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSnapshotStore enables snapshot persistence and rehydration.
func WithSnapshotStore(s SnapshotStore) ManagerOption {
	return func(m *Manager) { m.snapshots = s }
}

// WithTranscriptSink archives every state change.
func WithTranscriptSink(t TranscriptSink) ManagerOption {
	return func(m *Manager) { m.transcripts = t }
}

// Manager creates sessions over shared dependencies and routes operations
// to them by id.
type Manager struct {
	mu          sync.RWMutex
	deps        Deps
	cfg         Config
	store       SessionStore
	snapshots   SnapshotStore
	transcripts TranscriptSink
	logger      *zap.Logger
	restores    singleflight.Group
}

// NewManager creates a session manager. store nil uses a MemorySessionStore.
func NewManager(deps Deps, cfg Config, store SessionStore, opts ...ManagerOption) (*Manager, error) {
	if deps.Personas == nil || deps.Personas.Len() == 0 {
		return nil, types.NewError(types.ErrInvalidPersona, "persona registry is empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, err.Error())
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if store == nil {
		store = NewMemorySessionStore()
	}
	m := &Manager{
		deps:   deps,
		cfg:    cfg,
		store:  store,
		logger: deps.Logger.With(zap.String("component", "session_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Personas returns the registry new sessions are created with.
func (m *Manager) Personas() *persona.Registry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deps.Personas
}

// ReplacePersonas swaps the registry for sessions created afterwards.
// Live sessions keep the personas they started with.
func (m *Manager) ReplacePersonas(r *persona.Registry) error {
	if r == nil || r.Len() == 0 {
		return types.NewError(types.ErrInvalidPersona, "persona registry is empty")
	}
	m.mu.Lock()
	m.deps.Personas = r
	m.mu.Unlock()
	m.logger.Info("persona registry replaced", zap.Int("personas", r.Len()))
	return nil
}

func (m *Manager) currentDeps() Deps {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deps
}

// Create starts a new session and registers it.
func (m *Manager) Create(ctx context.Context, req StartRequest) (*Orchestrator, Status, error) {
	o, err := NewOrchestrator(m.currentDeps(), m.cfg)
	if err != nil {
		return nil, Status{}, err
	}
	status, err := o.Start(ctx, req)
	if err != nil {
		return nil, Status{}, err
	}
	m.store.Put(o.ID(), o)
	m.persist(ctx, o)
	m.logger.Info("session created", zap.String("session_id", o.ID()))
	return o, status, nil
}

// Get returns a live session, rehydrating it from the snapshot store when needed.
func (m *Manager) Get(ctx context.Context, id string) (*Orchestrator, error) {
	if o, ok := m.store.Get(id); ok {
		return o, nil
	}
	if m.snapshots == nil {
		return nil, types.Errorf(types.ErrSessionNotFound, "session %s not found", id)
	}
	return m.Load(ctx, id)
}

// Load rebuilds a session from its snapshot. Concurrent loads of one id
// share a single restore, and a session that is already resident is
// returned as is.
func (m *Manager) Load(ctx context.Context, id string) (*Orchestrator, error) {
	if m.snapshots == nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "no snapshot store configured")
	}
	v, err, _ := m.restores.Do(id, func() (any, error) {
		if o, ok := m.store.Get(id); ok {
			return o, nil
		}
		return m.restore(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Orchestrator), nil
}

func (m *Manager) restore(ctx context.Context, id string) (*Orchestrator, error) {
	snap, err := m.snapshots.LoadSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	o, err := NewOrchestrator(m.currentDeps(), m.cfg, WithSessionID(id))
	if err != nil {
		return nil, err
	}
	if err := o.Restore(snap); err != nil {
		return nil, err
	}
	m.store.Put(id, o)
	m.logger.Info("session restored from snapshot",
		zap.String("session_id", id),
		zap.Int("turns", len(snap.Turns)))
	return o, nil
}

// Submit appends a human message to a session.
func (m *Manager) Submit(ctx context.Context, id, text string) (Turn, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return Turn{}, err
	}
	turn, err := o.SubmitHumanMessage(ctx, text)
	if err != nil {
		return Turn{}, err
	}
	m.persist(ctx, o)
	return turn, nil
}

// Advance runs one round of a session.
func (m *Manager) Advance(ctx context.Context, id string) (RoundResult, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return RoundResult{}, err
	}
	res, err := o.AdvanceTurn(ctx)
	if err != nil {
		return RoundResult{}, err
	}
	if !res.NoResponse {
		m.persist(ctx, o)
	}
	return res, nil
}

// Run drives a session automatically, persisting after every appended turn.
func (m *Manager) Run(ctx context.Context, id string, opts RunOptions) (RunReport, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return RunReport{}, err
	}
	observe := opts.OnTurn
	opts.OnTurn = func(res RoundResult) {
		if !res.NoResponse {
			m.persist(ctx, o)
		}
		if observe != nil {
			observe(res)
		}
	}
	return o.Run(ctx, opts)
}

// Status reports a session's status.
func (m *Manager) Status(ctx context.Context, id string) (Status, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	return o.Status(), nil
}

// Transcript returns a session's turns.
func (m *Manager) Transcript(ctx context.Context, id string) ([]Turn, Summary, error) {
	o, err := m.Get(ctx, id)
	if err != nil {
		return nil, Summary{}, err
	}
	return o.Transcript(), o.Summary(), nil
}

// Stop closes a session without synthesis.
func (m *Manager) Stop(ctx context.Context, id string) error {
	o, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := o.Stop(ctx); err != nil {
		return err
	}
	m.persist(ctx, o)
	return nil
}

// Reset discards a session and forgets it.
func (m *Manager) Reset(ctx context.Context, id string) error {
	o, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	o.Reset()
	m.store.Remove(id)
	if m.snapshots != nil {
		if err := m.snapshots.DeleteSnapshot(ctx, id); err != nil {
			m.logger.Warn("snapshot delete failed", zap.String("session_id", id), zap.Error(err))
		}
	}
	return nil
}

// List reports the status of every live session.
func (m *Manager) List() []Status {
	ids := m.store.List()
	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		if o, ok := m.store.Get(id); ok {
			out = append(out, o.Status())
		}
	}
	return out
}

func (m *Manager) persist(ctx context.Context, o *Orchestrator) {
	if m.snapshots == nil && m.transcripts == nil {
		return
	}
	snap := o.Snapshot()
	if m.snapshots != nil {
		if err := m.snapshots.SaveSnapshot(ctx, snap); err != nil {
			m.logger.Warn("snapshot save failed", zap.String("session_id", snap.SessionID), zap.Error(err))
		}
	}
	if m.transcripts != nil {
		if err := m.transcripts.SaveTranscript(ctx, snap); err != nil {
			m.logger.Warn("transcript save failed", zap.String("session_id", snap.SessionID), zap.Error(err))
		}
	}
}

package conversation

import (
	"time"

	"github.com/BaSui01/debatehub/types"
)

// Snapshot is the full serializable state of a session.
type Snapshot struct {
	SessionID    string      `json:"session_id"`
	Objective    string      `json:"objective"`
	Model        string      `json:"model,omitempty"`
	Org          OrgContext  `json:"org,omitempty"`
	Started      bool        `json:"started"`
	Active       bool        `json:"active"`
	CloseReason  CloseReason `json:"close_reason,omitempty"`
	SilentRounds int         `json:"silent_rounds,omitempty"`
	Mode         string      `json:"mode"`
	Turns        []Turn      `json:"turns"`
	StartedAt    time.Time   `json:"started_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Snapshot captures the session for external persistence.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Snapshot{
		SessionID:    o.id,
		Objective:    o.objective,
		Model:        o.model,
		Org:          o.org,
		Started:      o.started,
		Active:       o.active,
		CloseReason:  o.closeReason,
		SilentRounds: o.silentRounds,
		Mode:         o.mode,
		Turns:        o.log.Turns(),
		StartedAt:    o.startedAt,
		UpdatedAt:    o.updatedAt,
	}
}

// Restore replaces the session state with a snapshot.
func (o *Orchestrator) Restore(s Snapshot) error {
	log, err := FromTurns(s.Turns)
	if err != nil {
		return err
	}
	if s.Active && !s.Started {
		return types.NewError(types.ErrSnapshotCorrupted, "active session that was never started")
	}
	if s.Started && log.Len() == 0 {
		return types.NewError(types.ErrSnapshotCorrupted, "started session without turns")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = s.Started
	o.active = s.Active
	o.objective = s.Objective
	o.model = s.Model
	o.org = s.Org
	o.closeReason = s.CloseReason
	o.silentRounds = s.SilentRounds
	o.mode = s.Mode
	if o.mode == "" {
		o.mode = ModeTurnByTurn
	}
	o.log = log
	o.startedAt = s.StartedAt
	o.updatedAt = s.UpdatedAt
	return nil
}

package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/debatehub/agent/persona"
	"github.com/BaSui01/debatehub/types"
)

// HumanSpeaker is the reserved speaker tag of human turns.
const HumanSpeaker = persona.HumanID

// TurnKind classifies a turn by how it was produced.
type TurnKind string

const (
	KindOpening   TurnKind = "opening"
	KindHuman     TurnKind = "human"
	KindAgent     TurnKind = "agent"
	KindSynthesis TurnKind = "synthesis"
	KindClosing   TurnKind = "closing"
)

// Turn is one immutable contribution to the conversation.
type Turn struct {
	Index       int       `json:"index"`
	Speaker     string    `json:"speaker"`
	SpeakerName string    `json:"speaker_name"`
	Content     string    `json:"content"`
	Kind        TurnKind  `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsHuman reports whether the turn came from the human participant.
func (t Turn) IsHuman() bool { return t.Speaker == HumanSpeaker }

// Render formats the turn as "[Name]: content".
func (t Turn) Render() string {
	name := t.SpeakerName
	if t.IsHuman() || name == "" {
		name = "Human"
	}
	return fmt.Sprintf("[%s]: %s", name, t.Content)
}

// Log is the append-only turn sequence of one session.
// It is not safe for concurrent use; the orchestrator serializes access.
type Log struct {
	turns []Turn
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{}
}

// FromTurns rebuilds a log, rejecting sequences whose indexes are not 0..n-1.
func FromTurns(turns []Turn) (*Log, error) {
	for i, t := range turns {
		if t.Index != i {
			return nil, types.Errorf(types.ErrSnapshotCorrupted, "turn at position %d has index %d", i, t.Index)
		}
		if t.Speaker == "" {
			return nil, types.Errorf(types.ErrSnapshotCorrupted, "turn %d has no speaker", i)
		}
	}
	return &Log{turns: append([]Turn(nil), turns...)}, nil
}

// Append adds a turn and returns it with its assigned index.
// Invalid UTF-8 is replaced with U+FFFD so the stored turn equals what a
// JSON snapshot restores.
func (l *Log) Append(speaker, name, content string, kind TurnKind, at time.Time) Turn {
	t := Turn{
		Index:       len(l.turns),
		Speaker:     speaker,
		SpeakerName: validUTF8(name),
		Content:     validUTF8(content),
		Kind:        kind,
		Timestamp:   at,
	}
	l.turns = append(l.turns, t)
	return t
}

func (l *Log) Len() int { return len(l.turns) }

// TurnCount is the number of turns after the facilitator's opening
// announcement. Status and the max_turns ceiling both use it.
func (l *Log) TurnCount() int {
	if len(l.turns) > 0 && l.turns[0].Kind == KindOpening {
		return len(l.turns) - 1
	}
	return len(l.turns)
}

// Turns returns a copy of every turn in order.
func (l *Log) Turns() []Turn {
	return append([]Turn(nil), l.turns...)
}

// Last returns the most recent turn.
func (l *Log) Last() (Turn, bool) {
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1], true
}

// LastSpeaker returns the speaker of the most recent turn, or "".
func (l *Log) LastSpeaker() string {
	t, _ := l.Last()
	return t.Speaker
}

// LastHuman returns the most recent human turn.
func (l *Log) LastHuman() (Turn, bool) {
	return l.LastBy(HumanSpeaker)
}

// LastBy returns the most recent turn of the given speaker.
func (l *Log) LastBy(speaker string) (Turn, bool) {
	for i := len(l.turns) - 1; i >= 0; i-- {
		if l.turns[i].Speaker == speaker {
			return l.turns[i], true
		}
	}
	return Turn{}, false
}

// CountBy counts the turns of one speaker.
func (l *Log) CountBy(speaker string) int {
	n := 0
	for _, t := range l.turns {
		if t.Speaker == speaker {
			n++
		}
	}
	return n
}

// Window returns a copy of the last n turns (all of them when n <= 0).
func (l *Log) Window(n int) []Turn {
	if n <= 0 || n >= len(l.turns) {
		return l.Turns()
	}
	return append([]Turn(nil), l.turns[len(l.turns)-n:]...)
}

func (l *Log) MarshalJSON() ([]byte, error) {
	if l.turns == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.turns)
}

func (l *Log) UnmarshalJSON(data []byte) error {
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return err
	}
	restored, err := FromTurns(turns)
	if err != nil {
		return err
	}
	l.turns = restored.turns
	return nil
}

func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

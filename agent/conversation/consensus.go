package conversation

import "strings"

// CloseReason explains why a session ended.
type CloseReason string

const (
	CloseNone           CloseReason = ""
	CloseConsensus      CloseReason = "consensus"
	CloseMaxTurns       CloseReason = "max_turns"
	CloseFinalSynthesis CloseReason = "final_synthesis"
	CloseStopped        CloseReason = "stopped"
)

// ConsensusDetector is the textual agreement heuristic.
type ConsensusDetector struct {
	cfg     ConsensusConfig
	matcher *phraseMatcher
}

// NewConsensusDetector compiles the indicator list.
func NewConsensusDetector(cfg ConsensusConfig) *ConsensusDetector {
	return &ConsensusDetector{cfg: cfg, matcher: newPhraseMatcher(cfg.Indicators)}
}

// Agrees reports whether one text contains an agreement indicator.
func (d *ConsensusDetector) Agrees(text string) bool {
	return d.matcher.Match(text)
}

// Reached fires when the log holds at least MinHistory turns and at least
// MinAgreeing of the last Window turns agree.
func (d *ConsensusDetector) Reached(log *Log) bool {
	if log.Len() < d.cfg.MinHistory {
		return false
	}
	agreeing := 0
	for _, t := range log.Window(d.cfg.Window) {
		if d.Agrees(t.Content) {
			agreeing++
		}
	}
	return agreeing >= d.cfg.MinAgreeing
}

// closeReason evaluates the closing conditions in priority order.
func closeReason(log *Log, cfg Config, consensus *ConsensusDetector, facilitatorID string) CloseReason {
	if consensus.Reached(log) {
		return CloseConsensus
	}
	if log.TurnCount() >= cfg.MaxTurns {
		return CloseMaxTurns
	}
	if marker := strings.ToLower(strings.TrimSpace(cfg.FinalSynthesisMarker)); marker != "" {
		if t, ok := log.LastBy(facilitatorID); ok && t.Kind != KindOpening &&
			strings.Contains(strings.ToLower(t.Content), marker) {
			return CloseFinalSynthesis
		}
	}
	return CloseNone
}

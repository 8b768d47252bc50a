package conversation

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// RunOptions drives the fully-automated mode.
type RunOptions struct {
	// MaxRounds caps the rounds of this call; <= 0 uses a ceiling that
	// always lets the session reach its turn limit.
	MaxRounds int
	// HumanInput is polled before every round; ok=false means no message.
	HumanInput func(ctx context.Context) (text string, ok bool)
	// OnTurn observes every round result.
	OnTurn func(RoundResult)
}

// RunReport summarizes an automated run.
type RunReport struct {
	Rounds      int         `json:"rounds"`
	Closed      bool        `json:"closed"`
	CloseReason CloseReason `json:"close_reason,omitempty"`
	Turns       int         `json:"turns"`
}

// Run loops AdvanceTurn until the session closes, MaxRounds elapse or ctx
// is done. Cancellation is checked between rounds only.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (RunReport, error) {
	o.mu.Lock()
	if err := o.checkActiveLocked(); err != nil {
		o.mu.Unlock()
		return RunReport{}, err
	}
	o.mode = ModeAutomated
	o.mu.Unlock()

	limit := opts.MaxRounds
	if limit <= 0 {
		limit = o.cfg.MaxTurns*o.cfg.SynthesisEvery + 1
	}

	var report RunReport
	for report.Rounds < limit {
		if err := ctx.Err(); err != nil {
			report.Turns = o.Status().LogLength
			return report, err
		}

		if opts.HumanInput != nil {
			if text, ok := opts.HumanInput(ctx); ok && strings.TrimSpace(text) != "" {
				if _, err := o.SubmitHumanMessage(ctx, text); err != nil {
					return report, err
				}
			}
		}

		res, err := o.AdvanceTurn(ctx)
		if err != nil {
			return report, err
		}
		report.Rounds++
		if opts.OnTurn != nil {
			opts.OnTurn(res)
		}
		if res.Closed {
			report.Closed = true
			report.CloseReason = res.CloseReason
			break
		}
	}

	report.Turns = o.Status().LogLength
	o.logger.Info("automated run finished",
		zap.Int("rounds", report.Rounds),
		zap.Bool("closed", report.Closed))
	return report, nil
}

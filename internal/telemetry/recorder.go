package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/BaSui01/debatehub/agent/conversation"

// Recorder 把会议引擎的观测值写成 OTel 指标，随 OTLP 导出。
// 与 Prometheus Collector 并存，通过 conversation.Recorders 组合。
type Recorder struct {
	rounds        metric.Int64Counter
	roundDuration metric.Float64Histogram
	selections    metric.Int64Counter
	scores        metric.Float64Histogram
	fallbacks     metric.Int64Counter
	closures      metric.Int64Counter
	sessionTurns  metric.Int64Histogram
}

// NewRecorder mp 为 nil 时使用全局 MeterProvider
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(meterName)

	var (
		r   Recorder
		err error
	)
	if r.rounds, err = m.Int64Counter("debate.rounds",
		metric.WithDescription("Rounds advanced, by outcome")); err != nil {
		return nil, err
	}
	if r.roundDuration, err = m.Float64Histogram("debate.round.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of one round")); err != nil {
		return nil, err
	}
	if r.selections, err = m.Int64Counter("debate.selections",
		metric.WithDescription("Speakers selected, by strategy and persona")); err != nil {
		return nil, err
	}
	if r.scores, err = m.Float64Histogram("debate.selection.score",
		metric.WithDescription("Relevance score of the selected speaker")); err != nil {
		return nil, err
	}
	if r.fallbacks, err = m.Int64Counter("debate.fallbacks",
		metric.WithDescription("Degraded results, by component")); err != nil {
		return nil, err
	}
	if r.closures, err = m.Int64Counter("debate.sessions.closed",
		metric.WithDescription("Closed sessions, by reason")); err != nil {
		return nil, err
	}
	if r.sessionTurns, err = m.Int64Histogram("debate.session.turns",
		metric.WithDescription("Turns in a session when it closed")); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Recorder) RecordRound(outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	r.rounds.Add(context.Background(), 1, attrs)
	r.roundDuration.Record(context.Background(), d.Seconds(), attrs)
}

func (r *Recorder) RecordSelection(strategy, personaID string, score float64) {
	r.selections.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("persona", personaID),
	))
	r.scores.Record(context.Background(), score, metric.WithAttributes(attribute.String("strategy", strategy)))
}

func (r *Recorder) RecordFallback(component, reason string) {
	r.fallbacks.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("component", component),
		attribute.String("reason", reason),
	))
}

func (r *Recorder) RecordSessionClosed(reason string, turns int) {
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	r.closures.Add(context.Background(), 1, attrs)
	r.sessionTurns.Record(context.Background(), int64(turns), attrs)
}

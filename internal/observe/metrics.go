// Package observe provides the OpenTelemetry metric instruments of a practice
// session and the Prometheus exporter bridge that serves them.
//
// Tests should use [NewMetrics] with a custom [metric.MeterProvider] so
// instruments can be read back with a manual reader.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all recite metrics.
const meterName = "github.com/verte-zerg/recite"

// Metrics holds the metric instruments. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// WordsMatched counts newly matched words.
	WordsMatched metric.Int64Counter

	// SentencesCompleted counts sentences whose every word was matched.
	SentencesCompleted metric.Int64Counter

	// WordsSkipped counts words accepted through a skip request.
	WordsSkipped metric.Int64Counter

	// SessionsCompleted counts sessions that reached the end of the prompt.
	SessionsCompleted metric.Int64Counter

	// EngagementLevel is the last written engagement level.
	EngagementLevel metric.Float64Gauge

	// ActuatorErrors counts failed actuation commands. Use with attribute:
	//   attribute.String("op", ...)
	ActuatorErrors metric.Int64Counter
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.WordsMatched, err = m.Int64Counter("recite.words.matched",
		metric.WithDescription("Total words matched against the transcript."),
	); err != nil {
		return nil, err
	}
	if met.SentencesCompleted, err = m.Int64Counter("recite.sentences.completed",
		metric.WithDescription("Total sentences completed."),
	); err != nil {
		return nil, err
	}
	if met.WordsSkipped, err = m.Int64Counter("recite.words.skipped",
		metric.WithDescription("Total words skipped on request."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("recite.sessions.completed",
		metric.WithDescription("Total practice sessions completed."),
	); err != nil {
		return nil, err
	}
	if met.EngagementLevel, err = m.Float64Gauge("recite.engagement.level",
		metric.WithDescription("Current engagement level in the range 0..100."),
	); err != nil {
		return nil, err
	}
	if met.ActuatorErrors, err = m.Int64Counter("recite.actuator.errors",
		metric.WithDescription("Total actuation errors by operation."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RecordWordsMatched adds n matched words.
func (m *Metrics) RecordWordsMatched(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.WordsMatched.Add(ctx, int64(n))
}

// RecordSentenceCompleted counts one completed sentence.
func (m *Metrics) RecordSentenceCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.SentencesCompleted.Add(ctx, 1)
}

// RecordWordSkipped counts one skipped word.
func (m *Metrics) RecordWordSkipped(ctx context.Context) {
	if m == nil {
		return
	}
	m.WordsSkipped.Add(ctx, 1)
}

// RecordSessionCompleted counts one completed session for the given prompt.
func (m *Metrics) RecordSessionCompleted(ctx context.Context, promptID string) {
	if m == nil {
		return
	}
	m.SessionsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("prompt_id", promptID)))
}

// RecordLevel records the engagement level.
func (m *Metrics) RecordLevel(ctx context.Context, level float64) {
	if m == nil {
		return
	}
	m.EngagementLevel.Record(ctx, level)
}

// RecordActuatorError counts one actuation failure of op.
func (m *Metrics) RecordActuatorError(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.ActuatorErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"diveops/internal/infrastructure"
)

const (
	TracerName = "diveops.wizard"
)

// Tracer provides OpenTelemetry instrumentation for wizard sessions
type Tracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.WizardMetrics
}

// NewTracer creates a tracer recording on the given providers
func NewTracer(providers *infrastructure.OTelProviders) (*Tracer, error) {
	meter := providers.Meter
	if meter == nil {
		meter = otel.Meter(TracerName)
	}
	metrics, err := infrastructure.CreateWizardMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create wizard metrics: %w", err)
	}

	tracer := providers.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	return &Tracer{tracer: tracer, metrics: metrics}, nil
}

// DefaultTracer records on the global providers, which are no-ops until
// InitializeOTel installs real ones.
func DefaultTracer() *Tracer {
	t, err := NewTracer(&infrastructure.OTelProviders{})
	if err != nil {
		return &Tracer{tracer: otel.Tracer(TracerName)}
	}
	return t
}

// TraceAutoSaveFlush starts the span around a debounced write
func (t *Tracer) TraceAutoSaveFlush(ctx context.Context, fields []string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "wizard.autosave.flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.StringSlice("autosave.fields", fields),
		),
	)
}

// RecordAutoSaveFlush ends a flush span and records its outcome
func (t *Tracer) RecordAutoSaveFlush(ctx context.Context, span trace.Span, duration time.Duration, err error) {
	defer span.End()

	result := resultLabel(err)
	span.SetAttributes(
		attribute.String("autosave.result", result),
		attribute.Float64("autosave.duration_seconds", duration.Seconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "autosave write failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if t.metrics == nil {
		return
	}
	t.metrics.AutoSaveFlushes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	t.metrics.AutoSaveWriteSeconds.Record(ctx, duration.Seconds())
}

// RecordAutoSaveSkipped counts a flush whose cleaned payload was empty
func (t *Tracer) RecordAutoSaveSkipped(ctx context.Context) {
	if t.metrics == nil {
		return
	}
	t.metrics.AutoSaveFlushes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "skipped")))
}

// TracePoll starts the span around one poll fetch. source is "record" or "documents".
func (t *Tracer) TracePoll(ctx context.Context, source, recordID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "wizard.poll."+source,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("record.id", recordID),
			attribute.String("poll.source", source),
		),
	)
}

// RecordPoll ends a poll span and counts the cycle
func (t *Tracer) RecordPoll(ctx context.Context, span trace.Span, source string, err error) {
	defer span.End()

	result := resultLabel(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "poll failed")
	}

	if t.metrics == nil {
		return
	}
	t.metrics.PollCycles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("result", result),
	))
}

// TraceStepCompletion starts the span around completeStep
func (t *Tracer) TraceStepCompletion(ctx context.Context, sessionID string, step StepID) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "wizard.step.complete",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("step.id", string(step)),
		),
	)
	if t.metrics != nil {
		t.metrics.StepCompletions.Add(ctx, 1, metric.WithAttributes(attribute.String("step", string(step))))
	}
	return ctx, span
}

// RecordNavigationRejected counts a move denied by a guard
func (t *Tracer) RecordNavigationRejected(ctx context.Context, action string) {
	if t.metrics == nil {
		return
	}
	t.metrics.NavigationRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordSessionDelta tracks the number of open sessions
func (t *Tracer) RecordSessionDelta(ctx context.Context, delta int64) {
	if t.metrics == nil {
		return
	}
	t.metrics.ActiveSessions.Add(ctx, delta)
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

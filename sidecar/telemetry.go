package sidecar

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/bazelment/agent-sidecar/protocol"
)

const instrumentationName = "github.com/bazelment/agent-sidecar/sidecar"

// Callback outcomes recorded on the sidecar.callbacks counter.
const (
	outcomeHandled = "handled"
	outcomeMissing = "missing_handler"
	outcomeFailed  = "handler_error"
)

// telemetry holds the OpenTelemetry instruments used by the mux and session.
// The global providers are used unless overridden; they are no-ops until the
// application installs real ones.
type telemetry struct {
	tracer           trace.Tracer
	events           metric.Int64Counter
	callbacks        metric.Int64Counter
	callbackDuration metric.Float64Histogram
	sendFailures     metric.Int64Counter
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) *telemetry {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	fallback := metricnoop.Meter{}

	t := &telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	if t.events, err = meter.Int64Counter("sidecar.events.dispatched",
		metric.WithDescription("Server events fanned out by the event mux")); err != nil {
		t.events, _ = fallback.Int64Counter("sidecar.events.dispatched")
	}
	if t.callbacks, err = meter.Int64Counter("sidecar.callbacks",
		metric.WithDescription("Callback requests answered, by kind and outcome")); err != nil {
		t.callbacks, _ = fallback.Int64Counter("sidecar.callbacks")
	}
	if t.callbackDuration, err = meter.Float64Histogram("sidecar.callback.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent in application callback handlers")); err != nil {
		t.callbackDuration, _ = fallback.Float64Histogram("sidecar.callback.duration")
	}
	if t.sendFailures, err = meter.Int64Counter("sidecar.send.failures",
		metric.WithDescription("Outbound client events that failed to send")); err != nil {
		t.sendFailures, _ = fallback.Int64Counter("sidecar.send.failures")
	}
	return t
}

func (t *telemetry) eventDispatched(ev *protocol.ServerEvent, fanout int) {
	t.events.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("payload", string(ev.PayloadKind())),
		attribute.Int("fanout", fanout),
	))
}

func (t *telemetry) startCallback(ctx context.Context, kind CallbackKind, invocationID, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "sidecar.callback."+string(kind),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("sidecar.callback.kind", string(kind)),
			attribute.String("sidecar.invocation_id", invocationID),
			attribute.String("sidecar.callback.name", name),
		),
	)
}

func (t *telemetry) endCallback(span trace.Span, kind CallbackKind, outcome string, err error, started time.Time) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
	attrs := metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", outcome),
	)
	t.callbacks.Add(context.Background(), 1, attrs)
	t.callbackDuration.Record(context.Background(), time.Since(started).Seconds(), attrs)
}

func (t *telemetry) sendFailed(payload protocol.ClientPayload) {
	t.sendFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("payload", string(payload)),
	))
}

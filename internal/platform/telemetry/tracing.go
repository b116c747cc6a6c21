package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/autoscript/runtime/internal/autoscript/executor"
	"github.com/autoscript/runtime/internal/autoscript/model"
)

// NewTracerProvider returns a process-local TracerProvider with no exporter
// attached. Callers that want spans shipped somewhere register an exporter
// via sdktrace.WithBatcher before calling otel.SetTracerProvider.
func NewTracerProvider() *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider()
}

// Tracer wraps an operation's attempt loop and recovery passes in spans, so
// a trace shows the serialized chain of operations within one run.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer drawing spans from the global TracerProvider
// under the instrumentation name "autoscript".
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer("autoscript")}
}

// StartOperation opens a span covering one operation's full Run call
// (pacing, attempts, retries, recovery). Callers must call the returned
// end func exactly once.
func (t *Tracer) StartOperation(ctx context.Context, runID string, op model.Operation, ectx executor.Event) (context.Context, func(outcome executor.Outcome)) {
	ctx, span := t.tracer.Start(ctx, "autoscript.operation",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("autoscript.run_id", runID),
			attribute.String("autoscript.operation_id", op.ID),
			attribute.String("autoscript.action", op.Action),
			attribute.String("autoscript.trigger", op.Trigger.String()),
			attribute.Bool("autoscript.is_subscription_event", ectx.IsSubscription),
		),
	)
	return ctx, func(outcome executor.Outcome) {
		span.SetAttributes(
			attribute.String("autoscript.status", string(outcome.Status)),
			attribute.String("autoscript.code", string(outcome.Code)),
			attribute.Int("autoscript.attempts", outcome.Attempts),
		)
		if outcome.TerminalDoneCode != "" {
			span.SetAttributes(attribute.String("autoscript.terminal_done_code", outcome.TerminalDoneCode))
		}
		span.End()
	}
}

// StartRecoveryPass opens a span for one recovery pass between failed
// attempts.
func (t *Tracer) StartRecoveryPass(ctx context.Context, operationID string, attempt int) (context.Context, func(ok bool)) {
	ctx, span := t.tracer.Start(ctx, "autoscript.recovery_pass",
		trace.WithAttributes(
			attribute.String("autoscript.operation_id", operationID),
			attribute.Int("autoscript.recovery_attempt", attempt),
		),
	)
	return ctx, func(ok bool) {
		span.SetAttributes(attribute.Bool("autoscript.recovery_ok", ok))
		span.End()
	}
}

// Package tracing provides OpenTelemetry distributed tracing.
//
// Spans cover orchestrated requests (orchestrator.execute), provider calls
// and task queue batches. Trace context travels in W3C traceparent headers
// on provider HTTP calls and the API server, and in AMQP message headers on
// the intake path.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "orchestrator.execute")
//	tracing.SetRequestAttributes(span, req.ID, string(req.Type), string(req.Priority))
//	defer span.End()
//
// A nil *Tracer is valid and produces no-op spans.
package tracing

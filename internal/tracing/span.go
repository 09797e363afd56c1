package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartRunSpan starts the root span covering one benchmark run.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, caseName, fmuPath string, trials int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "fmibench.run",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("fmibench.case", caseName),
		attribute.String("fmibench.fmu", fmuPath),
		attribute.Int("fmibench.trials", trials),
	)
	return ctx, span
}

// StartTrialSpan starts a child span for a single trial.
func StartTrialSpan(ctx context.Context, tracer trace.Tracer, index int, instance string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "trial",
		trace.WithAttributes(
			attribute.Int("fmibench.trial", index),
			attribute.String("fmibench.instance", instance),
		),
	)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

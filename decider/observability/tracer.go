package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/queueops/sqs-decider/decider"

// Span names emitted by the pipeline.
const (
	// SpanNameDecode covers decoding a message body into a structured value.
	SpanNameDecode = "sqs.message.decode"
	// SpanNameResolve covers running the business handler and mapping its
	// outcome to an action.
	SpanNameResolve = "sqs.message.resolve"
	// SpanNameExecute covers applying a decision against the queue.
	SpanNameExecute = "sqs.decision.execute"
)

// SQSTracer creates spans for pipeline stages.
type SQSTracer interface {
	Span(ctx context.Context, spanName string, opts ...SpanOption) (context.Context, trace.Span)
}

// SpanOption aliases OpenTelemetry's span start options so callers can mix
// the helpers below with plain otel options.
type SpanOption = trace.SpanStartOption

type otelTracer struct {
	tracer trace.Tracer
}

var _ SQSTracer = (*otelTracer)(nil)

// NewTracer builds a tracer from the config's tracer provider.
func NewTracer(cfg *Config) SQSTracer {
	return &otelTracer{
		tracer: cfg.TracerProvider().Tracer(
			tracerName,
			trace.WithInstrumentationVersion(cfg.ServiceVersion()),
		),
	}
}

func (t *otelTracer) Span(ctx context.Context, spanName string, opts ...SpanOption) (context.Context, trace.Span) {
	defaultOpts := []SpanOption{
		trace.WithAttributes(attribute.String("messaging.system", "aws-sqs")),
	}

	return t.tracer.Start(ctx, spanName, append(defaultOpts, opts...)...)
}

// RecordSpanResult records success or failure on the span and returns the
// matching status string for metric attributes.
func RecordSpanResult(span trace.Span, err error) Status {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return StatusError
	}

	span.SetStatus(codes.Ok, "success")

	return StatusSuccess
}

package observability

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingTracer() (SQSTracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	return NewTracer(NewConfig(WithTracerProvider(provider))), recorder
}

func TestTracer_SpanCarriesDefaultAndCustomAttributes(t *testing.T) {
	t.Parallel()

	tracer, recorder := newRecordingTracer()

	_, span := tracer.Span(context.Background(), SpanNameResolve,
		WithQueueURL("https://sqs.example.com/queue"),
		WithAction(ActionResolve),
		WithConsumerSpanKind(),
	)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)

	got := ended[0]
	assert.Equal(t, SpanNameResolve, got.Name())
	assert.Equal(t, trace.SpanKindConsumer, got.SpanKind())

	attrs := got.Attributes()
	assert.Contains(t, attrs, attribute.String("messaging.system", "aws-sqs"))
	assert.Contains(t, attrs, attribute.String("sqs.queue.url", "https://sqs.example.com/queue"))
	assert.Contains(t, attrs, attribute.String("messaging.sqs.action", "resolve"))
}

func TestTracer_EmptyAttributeValuesAreSkipped(t *testing.T) {
	t.Parallel()

	tracer, recorder := newRecordingTracer()

	_, span := tracer.Span(context.Background(), SpanNameDecode,
		WithQueueURL(""),
		WithMessageID(nil),
	)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)

	for _, attr := range ended[0].Attributes() {
		assert.NotEqual(t, attribute.Key("sqs.queue.url"), attr.Key)
		assert.NotEqual(t, attribute.Key("messaging.message.id"), attr.Key)
	}
}

func TestRecordSpanResult(t *testing.T) {
	t.Parallel()

	tracer, recorder := newRecordingTracer()

	_, okSpan := tracer.Span(context.Background(), SpanNameExecute)
	status := RecordSpanResult(okSpan, nil)
	okSpan.End()

	assert.Equal(t, StatusSuccess, status)

	_, errSpan := tracer.Span(context.Background(), SpanNameExecute)
	status = RecordSpanResult(errSpan, fmt.Errorf("queue unreachable"))
	errSpan.End()

	assert.Equal(t, StatusError, status)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	require.Len(t, ended[1].Events(), 1) // the recorded error
}

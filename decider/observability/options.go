package observability

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Action labels the pipeline operation a span or metric belongs to.
type Action string

const (
	// ActionAcknowledge marks a message removed from the queue.
	ActionAcknowledge Action = "acknowledge"
	// ActionRequeue marks a message rescheduled for redelivery.
	ActionRequeue Action = "requeue"
	// ActionDecode marks body decoding.
	ActionDecode Action = "decode"
	// ActionResolve marks handler execution and outcome mapping.
	ActionResolve Action = "resolve"
	// ActionDrop marks a message excluded by the retry limit.
	ActionDrop Action = "drop"
)

// Status labels whether an operation succeeded.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// WithQueueURL adds the queue URL as a span attribute.
func WithQueueURL(queueURL string) SpanOption {
	if queueURL == "" {
		return trace.WithAttributes()
	}

	return trace.WithAttributes(attribute.String("sqs.queue.url", queueURL))
}

// WithMessageID adds the SQS message ID as a span attribute, following the
// OpenTelemetry messaging conventions.
func WithMessageID(messageID *string) SpanOption {
	if messageID == nil || *messageID == "" {
		return trace.WithAttributes()
	}

	return trace.WithAttributes(attribute.String("messaging.message.id", *messageID))
}

// WithAction adds the pipeline action as a span attribute.
func WithAction(action Action) SpanOption {
	return trace.WithAttributes(attribute.String("messaging.sqs.action", string(action)))
}

// WithConsumerSpanKind marks a span as message consumption.
func WithConsumerSpanKind() SpanOption {
	return trace.WithSpanKind(trace.SpanKindConsumer)
}

// WithClientSpanKind marks a span as an SQS API call.
func WithClientSpanKind() SpanOption {
	return trace.WithSpanKind(trace.SpanKindClient)
}

// WithInternalSpanKind marks a span as internal processing.
func WithInternalSpanKind() SpanOption {
	return trace.WithSpanKind(trace.SpanKindInternal)
}

// MetricOption produces one metric attribute.
type MetricOption func() attribute.KeyValue

// WithQueueURLMetric adds the queue URL as a metric attribute.
func WithQueueURLMetric(queueURL string) MetricOption {
	return func() attribute.KeyValue {
		return attribute.String("sqs.queue.url", queueURL)
	}
}

// WithActionMetric adds the pipeline action as a metric attribute.
func WithActionMetric(action Action) MetricOption {
	return func() attribute.KeyValue {
		return attribute.String("messaging.sqs.action", string(action))
	}
}

// WithStatus adds the operation status as a metric attribute.
func WithStatus(status Status) MetricOption {
	return func() attribute.KeyValue {
		return attribute.String("status", string(status))
	}
}

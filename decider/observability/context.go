package observability

import (
	"context"

	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/otel/propagation"
)

// ExtractTraceContext extracts distributed trace context carried in SQS
// message attributes. When the producer injected a trace context, pipeline
// spans become children of the producer's trace; otherwise the original
// context is returned unchanged and spans start a new trace.
func ExtractTraceContext(ctx context.Context, msg sqstypes.Message, p propagation.TextMapPropagator) context.Context {
	if p == nil || len(msg.MessageAttributes) == 0 {
		return ctx
	}

	return p.Extract(ctx, messageAttributeCarrier(msg.MessageAttributes))
}

// messageAttributeCarrier adapts SQS message attributes to the
// TextMapCarrier interface.
type messageAttributeCarrier map[string]sqstypes.MessageAttributeValue

var _ propagation.TextMapCarrier = messageAttributeCarrier(nil)

func (c messageAttributeCarrier) Get(key string) string {
	if attr, ok := c[key]; ok && attr.StringValue != nil {
		return *attr.StringValue
	}

	return ""
}

func (c messageAttributeCarrier) Set(key, value string) {
	dataType := "String"
	c[key] = sqstypes.MessageAttributeValue{
		DataType:    &dataType,
		StringValue: &value,
	}
}

func (c messageAttributeCarrier) Keys() []string {
	if len(c) == 0 {
		return nil
	}

	keys := make([]string, 0, len(c))
	for key := range c {
		keys = append(keys, key)
	}

	return keys
}

package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/queueops/sqs-decider/decider"

// MetricName enumerates the metrics the pipeline records.
type MetricName string

const (
	// MetricDecisions counts emitted decisions, labelled by action.
	MetricDecisions MetricName = "sqs_decisions"
	// MetricDecodeFailures counts bodies that could not be decoded.
	MetricDecodeFailures MetricName = "sqs_decode_failures"
	// MetricDroppedMessages counts messages excluded by the retry limit.
	MetricDroppedMessages MetricName = "sqs_messages_dropped"
	// MetricHandleDuration measures business-handler execution time.
	MetricHandleDuration MetricName = "sqs_handle_duration"
	// MetricExecuteDuration measures the time to apply a decision.
	MetricExecuteDuration MetricName = "sqs_execute_duration"
	// MetricPollingRequests counts ReceiveMessage calls.
	MetricPollingRequests MetricName = "sqs_polling_requests"
)

var metricInfo = map[MetricName]struct {
	Description string
	Unit        string
}{
	MetricDecisions:       {Description: "Total number of decisions emitted by the pipeline.", Unit: "1"},
	MetricDecodeFailures:  {Description: "Total number of message bodies that failed to decode.", Unit: "1"},
	MetricDroppedMessages: {Description: "Total number of messages dropped by the retry-limit gate.", Unit: "1"},
	MetricHandleDuration:  {Description: "Duration of business-handler invocations.", Unit: "s"},
	MetricExecuteDuration: {Description: "Duration of decision executions against SQS.", Unit: "s"},
	MetricPollingRequests: {Description: "Total number of SQS polling requests.", Unit: "1"},
}

// SQSMetrics records pipeline metrics.
type SQSMetrics interface {
	// Counter adds a value to a cumulative metric.
	Counter(ctx context.Context, name MetricName, value int64, opts ...MetricOption)
	// Histogram records an observation for a distribution metric.
	Histogram(ctx context.Context, name MetricName, value float64, opts ...MetricOption)
	// RecordDuration records a duration as a histogram observation in seconds.
	RecordDuration(ctx context.Context, name MetricName, duration time.Duration, opts ...MetricOption)
}

type otelMetrics struct {
	meter      metric.Meter
	counters   map[MetricName]metric.Int64Counter
	histograms map[MetricName]metric.Float64Histogram

	mu sync.Mutex
}

var _ SQSMetrics = (*otelMetrics)(nil)

// NewMetrics builds metrics from the config's meter provider.
func NewMetrics(cfg *Config) SQSMetrics {
	return &otelMetrics{
		meter: cfg.MeterProvider().Meter(
			meterName,
			metric.WithInstrumentationVersion(cfg.ServiceVersion()),
		),
		counters:   make(map[MetricName]metric.Int64Counter),
		histograms: make(map[MetricName]metric.Float64Histogram),
	}
}

func (m *otelMetrics) Counter(ctx context.Context, name MetricName, value int64, opts ...MetricOption) {
	counter, err := m.counter(name)
	if err != nil {
		otel.Handle(err)

		return
	}

	counter.Add(ctx, value, metric.WithAttributes(buildAttributes(opts)...))
}

func (m *otelMetrics) Histogram(ctx context.Context, name MetricName, value float64, opts ...MetricOption) {
	histogram, err := m.histogram(name)
	if err != nil {
		otel.Handle(err)

		return
	}

	histogram.Record(ctx, value, metric.WithAttributes(buildAttributes(opts)...))
}

func (m *otelMetrics) RecordDuration(ctx context.Context, name MetricName, duration time.Duration, opts ...MetricOption) {
	m.Histogram(ctx, name, duration.Seconds(), opts...)
}

func (m *otelMetrics) counter(name MetricName) (metric.Int64Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.counters[name]; ok {
		return c, nil
	}

	meta := metricInfo[name]

	c, err := m.meter.Int64Counter(string(name), metric.WithDescription(meta.Description), metric.WithUnit(meta.Unit))
	if err != nil {
		return nil, err
	}

	m.counters[name] = c

	return c, nil
}

func (m *otelMetrics) histogram(name MetricName) (metric.Float64Histogram, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.histograms[name]; ok {
		return h, nil
	}

	meta := metricInfo[name]

	h, err := m.meter.Float64Histogram(string(name), metric.WithDescription(meta.Description), metric.WithUnit(meta.Unit))
	if err != nil {
		return nil, err
	}

	m.histograms[name] = h

	return h, nil
}

func buildAttributes(opts []MetricOption) []attribute.KeyValue {
	attributes := make([]attribute.KeyValue, len(opts))
	for i, opt := range opts {
		attributes[i] = opt()
	}

	return attributes
}

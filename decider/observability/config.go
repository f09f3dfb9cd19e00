// Package observability provides OpenTelemetry tracing and metrics for the
// decision pipeline. Everything is disabled by default: the zero config
// uses noop providers, so instrumentation costs nothing unless a real
// provider is supplied.
package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	meterNoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName identifies the pipeline in emitted telemetry.
	DefaultServiceName = "sqs-decider"
	// DefaultServiceVersion is reported as the instrumentation version.
	DefaultServiceVersion = "1.0.0"
)

// Config holds the observability wiring. It is built once at startup and
// never mutated afterwards, so it is safe for concurrent read-only use.
type Config struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
	serviceName    string
	serviceVersion string
}

// Option configures a Config.
type Option interface {
	apply(*Config)
}

type option func(*Config)

func (o option) apply(c *Config) {
	o(c)
}

// NewConfig creates an observability config with noop providers and the
// global propagator.
func NewConfig(opts ...Option) *Config {
	c := &Config{
		serviceName:    DefaultServiceName,
		serviceVersion: DefaultServiceVersion,
		propagator:     otel.GetTextMapPropagator(),
		tracerProvider: traceNoop.NewTracerProvider(),
		meterProvider:  meterNoop.NewMeterProvider(),
	}

	for _, opt := range opts {
		opt.apply(c)
	}

	return c
}

// WithTracerProvider sets the tracer provider. A nil provider falls back
// to the noop provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return option(func(c *Config) {
		if tp == nil {
			tp = traceNoop.NewTracerProvider()
		}

		c.tracerProvider = tp
	})
}

// WithMeterProvider sets the meter provider. A nil provider falls back to
// the noop provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return option(func(c *Config) {
		if mp == nil {
			mp = meterNoop.NewMeterProvider()
		}

		c.meterProvider = mp
	})
}

// WithPropagator sets the trace-context propagator used to join producer
// traces.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return option(func(c *Config) {
		c.propagator = p
	})
}

// WithServiceName sets the service name.
func WithServiceName(name string) Option {
	return option(func(c *Config) {
		c.serviceName = name
	})
}

// WithServiceVersion sets the service version.
func WithServiceVersion(version string) Option {
	return option(func(c *Config) {
		c.serviceVersion = version
	})
}

// TracerProvider returns the configured tracer provider.
func (c *Config) TracerProvider() trace.TracerProvider {
	return c.tracerProvider
}

// MeterProvider returns the configured meter provider.
func (c *Config) MeterProvider() metric.MeterProvider {
	return c.meterProvider
}

// Propagator returns the configured trace-context propagator.
func (c *Config) Propagator() propagation.TextMapPropagator {
	return c.propagator
}

// ServiceName returns the configured service name.
func (c *Config) ServiceName() string {
	return c.serviceName
}

// ServiceVersion returns the configured service version.
func (c *Config) ServiceVersion() string {
	return c.serviceVersion
}

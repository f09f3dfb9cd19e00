package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	meterNoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

func TestNewConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	assert.Equal(t, DefaultServiceName, cfg.ServiceName())
	assert.Equal(t, DefaultServiceVersion, cfg.ServiceVersion())
	assert.NotNil(t, cfg.TracerProvider())
	assert.NotNil(t, cfg.MeterProvider())
}

func TestNewConfig_Options(t *testing.T) {
	t.Parallel()

	propagator := propagation.TraceContext{}
	cfg := NewConfig(
		WithServiceName("orders-pipeline"),
		WithServiceVersion("2.3.4"),
		WithPropagator(propagator),
	)

	assert.Equal(t, "orders-pipeline", cfg.ServiceName())
	assert.Equal(t, "2.3.4", cfg.ServiceVersion())
	assert.Equal(t, propagator, cfg.Propagator())
}

func TestNewConfig_NilProvidersFallBackToNoop(t *testing.T) {
	t.Parallel()

	cfg := NewConfig(
		WithTracerProvider(nil),
		WithMeterProvider(nil),
	)

	assert.Equal(t, traceNoop.NewTracerProvider(), cfg.TracerProvider())
	assert.Equal(t, meterNoop.NewMeterProvider(), cfg.MeterProvider())
}

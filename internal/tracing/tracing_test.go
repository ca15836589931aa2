package tracing_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/pktbench/internal/config"
	"github.com/torosent/pktbench/internal/tracing"
)

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter, tp.Tracer("test")
}

func TestInitDisabledByDefault(t *testing.T) {
	p, err := tracing.Init(context.Background(), config.TracingConfig{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if p.Enabled() {
		t.Error("Enabled() = true, want false when tracing disabled")
	}

	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
	if span.SpanContext().IsValid() {
		t.Error("disabled provider produced a recording span")
	}
}

func TestInitWithEndpointEnablesTracing(t *testing.T) {
	// The exporter connects lazily, so no collector is needed.
	p, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint:    "localhost:4317",
		Protocol:    "grpc",
		ServiceName: "test-service",
		SampleRate:  1.0,
		Insecure:    true,
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if !p.Enabled() {
		t.Error("Enabled() = false, want true with an endpoint")
	}
}

func TestInitHTTPProtocol(t *testing.T) {
	p, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint:   "localhost:4318",
		Protocol:   "http",
		Insecure:   true,
		SampleRate: 0.5,
	})
	if err != nil {
		t.Fatalf("Init() with http protocol error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if !p.Enabled() {
		t.Error("Enabled() = false, want true")
	}
}

func TestInitUnsupportedProtocol(t *testing.T) {
	_, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint: "localhost:4317",
		Protocol: "thrift",
		Insecure: true,
	})
	if err == nil {
		t.Fatal("Init() with unsupported protocol should return error")
	}
}

func TestInitInvalidSampleRate(t *testing.T) {
	tests := []struct {
		name string
		rate float64
	}{
		{"negative", -0.5},
		{"above one", 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tracing.Init(context.Background(), config.TracingConfig{
				Endpoint:   "localhost:4317",
				Protocol:   "grpc",
				Insecure:   true,
				SampleRate: tt.rate,
			})
			if err == nil {
				t.Fatalf("Init() with sample_rate=%g should return error", tt.rate)
			}
		})
	}
}

func TestNilProviderSafety(t *testing.T) {
	var p *tracing.Provider
	if p.Enabled() {
		t.Error("nil provider Enabled() = true, want false")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("nil provider Shutdown() error = %v", err)
	}
	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
}

func attrValue(attrs []attribute.KeyValue, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestRunAndIterationSpans(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	ctx, run := tracing.StartRunSpan(context.Background(), tracer, "01JRUN", tracing.AttrPacketSize.Int(60))
	_, iter := tracing.StartIterationSpan(ctx, tracer, 3, "eth1", 100)
	tracing.EndSpan(iter, nil, tracing.AttrPacketRate.Float64(14.88e6))
	tracing.EndSpan(run, nil)

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	measurement, experiment := spans[0], spans[1]

	if experiment.Name != "experiment" || measurement.Name != "measurement" {
		t.Fatalf("span names = %q, %q", experiment.Name, measurement.Name)
	}
	if measurement.Parent.SpanID() != experiment.SpanContext.SpanID() {
		t.Error("measurement span is not a child of the experiment span")
	}
	if v, ok := attrValue(experiment.Attributes, tracing.AttrRunID); !ok || v.AsString() != "01JRUN" {
		t.Errorf("run_id attribute = %v", v)
	}
	if v, ok := attrValue(experiment.Attributes, tracing.AttrPacketSize); !ok || v.AsInt64() != 60 {
		t.Errorf("packet_size attribute = %v", v)
	}
	if v, ok := attrValue(measurement.Attributes, tracing.AttrIteration); !ok || v.AsInt64() != 3 {
		t.Errorf("iteration attribute = %v", v)
	}
	if v, ok := attrValue(measurement.Attributes, tracing.AttrPacketRate); !ok || v.AsFloat64() != 14.88e6 {
		t.Errorf("pps attribute = %v", v)
	}
}

func TestEndSpanRecordsError(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, span := tracer.Start(context.Background(), "test-error")
	tracing.EndSpan(span, errors.New("pkt-gen exited with status 1"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status code = %d, want %d (Error)", spans[0].Status.Code, codes.Error)
	}
	if len(spans[0].Events) == 0 {
		t.Error("error event not recorded")
	}
}

func TestEndSpanOk(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, span := tracer.Start(context.Background(), "test-ok")
	tracing.EndSpan(span, nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("span status code = %d, want %d (Ok)", spans[0].Status.Code, codes.Ok)
	}
}

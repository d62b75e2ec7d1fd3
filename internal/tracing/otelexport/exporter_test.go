package otelexport

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestNew_EmptyEndpoint(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestNew_Protocols(t *testing.T) {
	for _, protocol := range []string{"grpc", "http", ""} {
		exp, err := New(context.Background(), Config{
			Endpoint: "localhost:4317",
			Protocol: protocol,
			Insecure: true,
			Headers:  map[string]string{"authorization": "Bearer x"},
		})
		if err != nil {
			t.Fatalf("protocol %q: %v", protocol, err)
		}
		if exp.TracerProvider() == nil {
			t.Errorf("protocol %q: nil tracer provider", protocol)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = exp.Shutdown(ctx)
		cancel()
	}
}

func TestConfig_DefaultServiceName(t *testing.T) {
	if got := (Config{}).serviceName(); got != "auraxis" {
		t.Errorf("serviceName = %q", got)
	}
	if got := (Config{ServiceName: "ps2-feed"}).serviceName(); got != "ps2-feed" {
		t.Errorf("serviceName = %q", got)
	}
}

func TestExporter_ForceFlush(t *testing.T) {
	mem := tracetest.NewInMemoryExporter()
	res := resource.NewSchemaless(semconv.ServiceName("auraxis-test"))
	exp := newExporter(mem, res)

	_, span := exp.TracerProvider().Tracer("test").Start(context.Background(), "realtime.session")
	span.End()

	if err := exp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	defer exp.Shutdown(context.Background())
	spans := mem.GetSpans()
	if len(spans) != 1 || spans[0].Name != "realtime.session" {
		t.Fatalf("spans = %v", spans)
	}
	if v, ok := spans[0].Resource.Set().Value(semconv.ServiceNameKey); !ok || v.AsString() != "auraxis-test" {
		t.Errorf("service name = %v", v)
	}
}

func TestExporter_Shutdown_NilExporter(t *testing.T) {
	var exp *Exporter
	if err := exp.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

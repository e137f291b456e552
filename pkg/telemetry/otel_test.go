package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	exp := NewOTLPExporter(DefaultOTLPConfig("logtables-test"))
	shutdown, err := exp.Init(context.Background())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if exp.IsInitialized() {
		t.Error("Expected exporter to stay disabled without endpoint")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestStartSpan_NoopProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "xes.import", attribute.Int("rows", 3))
	if ctx == nil || span == nil {
		t.Fatal("Expected span and context")
	}
	SetSpanAttributes(ctx, attribute.String("format", "xes"))
	EndSpan(span, errors.New("boom"))
}

package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanHelpersAnnotateSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, ok := StartSpan(context.Background(), "ReconcileCommand.Handle")
	AddSpanAttributes(ok, attribute.String("order.id", "order-1"))
	EndSpan(ok, nil)

	_, failed := StartSpan(context.Background(), "CreateCheckoutCommand.Handle")
	AddSpanEvent(failed, "processor retry")
	EndSpan(failed, errors.New("processor unavailable"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("success span status = %v", spans[0].Status().Code)
	}
	if len(spans[0].Attributes()) != 1 {
		t.Errorf("attributes = %v", spans[0].Attributes())
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "processor unavailable" {
		t.Errorf("failed span status = %+v", spans[1].Status())
	}
	if len(spans[1].Events()) != 2 {
		t.Errorf("events = %d, want the retry note and the recorded error", len(spans[1].Events()))
	}
}

func TestSpanIdentifiersWithoutSpan(t *testing.T) {
	traceID, spanID := spanIdentifiers(context.Background())
	if traceID != "" || spanID != "" {
		t.Errorf("spanIdentifiers() = %q, %q; want empty", traceID, spanID)
	}
}

func TestHelpersTolerateNilSpan(t *testing.T) {
	AddSpanAttributes(nil, attribute.String("k", "v"))
	AddSpanEvent(nil, "event")
	RecordSpanError(nil, errors.New("x"))
	SetSpanSuccess(nil)
}

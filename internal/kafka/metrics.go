package kafka

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records event publishing latency and failures.
type Metrics struct {
	producerLatency metric.Float64Histogram
	publishErrors   metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	latency, err := meter.Float64Histogram(
		"kafka_producer_latency_seconds",
		metric.WithDescription("Order event publish latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka_producer_latency histogram: %w", err)
	}

	publishErrors, err := meter.Int64Counter(
		"kafka_publish_errors_total",
		metric.WithDescription("Order events that could not be published"),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka_publish_errors counter: %w", err)
	}

	return &Metrics{producerLatency: latency, publishErrors: publishErrors}, nil
}

func (m *Metrics) RecordPublish(ctx context.Context, eventType string, durationSeconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
		m.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
	}
	m.producerLatency.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("status", status),
	))
}

package http

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the storefront API's request instruments.
type Metrics struct {
	requestDuration  metric.Float64Histogram
	requestsTotal    metric.Int64Counter
	requestsInFlight metric.Int64UpDownCounter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	duration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("Storefront API request latency by route"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration histogram: %w", err)
	}

	total, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Storefront API requests by route and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total counter: %w", err)
	}

	inFlight, err := meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Storefront API requests currently being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_in_flight counter: %w", err)
	}

	return &Metrics{requestDuration: duration, requestsTotal: total, requestsInFlight: inFlight}, nil
}

// RequestStarted and RequestFinished bracket a request for the in-flight gauge.
func (m *Metrics) RequestStarted(ctx context.Context) {
	m.requestsInFlight.Add(ctx, 1)
}

func (m *Metrics) RequestFinished(ctx context.Context) {
	m.requestsInFlight.Add(ctx, -1)
}

func (m *Metrics) RecordRequest(ctx context.Context, method, route string, statusCode int, durationSeconds float64) {
	routeAttrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
	}
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(append(routeAttrs,
		attribute.Int("status_code", statusCode),
		attribute.String("status_class", strconv.Itoa(statusCode/100)+"xx"),
	)...))
	m.requestDuration.Record(ctx, durationSeconds, metric.WithAttributes(routeAttrs...))
}

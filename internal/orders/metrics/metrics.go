package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the business instruments of the order flow.
type Metrics struct {
	checkoutSessions     metric.Int64Counter
	checkoutDuration     metric.Float64Histogram
	inconsistentSessions metric.Int64Counter
	transitions          metric.Int64Counter
	webhookEvents        metric.Int64Counter
	webhookLookupMisses  metric.Int64Counter
	downloads            metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.checkoutSessions, err = meter.Int64Counter(
		"checkout_sessions_total",
		metric.WithDescription("Checkout sessions requested, by target kind and result"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout_sessions_total counter: %w", err)
	}

	m.checkoutDuration, err = meter.Float64Histogram(
		"checkout_duration_seconds",
		metric.WithDescription("Duration of checkout creation including the processor call"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout_duration histogram: %w", err)
	}

	m.inconsistentSessions, err = meter.Int64Counter(
		"checkout_inconsistent_sessions_total",
		metric.WithDescription("Processor sessions opened without a persisted order"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout_inconsistent_sessions_total counter: %w", err)
	}

	m.transitions, err = meter.Int64Counter(
		"reconciliation_transitions_total",
		metric.WithDescription("Payment outcomes resolved against orders"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reconciliation_transitions_total counter: %w", err)
	}

	m.webhookEvents, err = meter.Int64Counter(
		"webhook_events_total",
		metric.WithDescription("Webhook events received, by type and result"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create webhook_events_total counter: %w", err)
	}

	m.webhookLookupMisses, err = meter.Int64Counter(
		"webhook_order_lookup_miss_total",
		metric.WithDescription("Verified webhook events that matched no order"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create webhook_order_lookup_miss_total counter: %w", err)
	}

	m.downloads, err = meter.Int64Counter(
		"downloads_total",
		metric.WithDescription("Template download attempts, by result"),
		metric.WithUnit("{download}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create downloads_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordCheckout(ctx context.Context, kind string, success bool, durationSeconds float64) {
	m.checkoutSessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status(success)),
	))
	m.checkoutDuration.Record(ctx, durationSeconds, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordInconsistentSession(ctx context.Context) {
	m.inconsistentSessions.Add(ctx, 1)
}

func (m *Metrics) RecordTransition(ctx context.Context, source, outcome, decision string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
		attribute.String("decision", decision),
	))
}

func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType, result string) {
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("result", result),
	))
}

func (m *Metrics) RecordWebhookLookupMiss(ctx context.Context, eventType string) {
	m.webhookLookupMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

func (m *Metrics) RecordDownload(ctx context.Context, result string) {
	m.downloads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

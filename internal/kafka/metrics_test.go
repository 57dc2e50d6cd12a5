package kafka

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordPublish(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	ctx := context.Background()
	metrics.RecordPublish(ctx, "order.paid", 0.2, true)
	metrics.RecordPublish(ctx, "order.failed", 0.3, false)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	var latencyPoints int
	var errorCount int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "kafka_producer_latency_seconds":
				latencyPoints = len(m.Data.(metricdata.Histogram[float64]).DataPoints)
			case "kafka_publish_errors_total":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					errorCount += dp.Value
				}
			}
		}
	}

	if latencyPoints != 2 {
		t.Errorf("latency data points = %d, want 2", latencyPoints)
	}
	if errorCount != 1 {
		t.Errorf("publish errors = %d, want 1", errorCount)
	}
}

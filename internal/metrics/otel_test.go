package metrics

import (
	"context"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupOTelTest(t *testing.T) *metric.ManualReader {
	t.Helper()
	ResetForTesting()
	ResetOTelForTesting()
	t.Cleanup(func() {
		ResetForTesting()
		ResetOTelForTesting()
	})

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	if err := InitOTelMetrics(); err != nil {
		t.Fatalf("InitOTelMetrics failed: %v", err)
	}
	return reader
}

func collect(t *testing.T, reader *metric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}
	return rm
}

func TestOTelMetricsReflectStore(t *testing.T) {
	reader := setupOTelTest(t)

	store, err := NewStore(filepath.Join(t.TempDir(), "test_stats.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	SetStoreForTesting(store)

	verifyMetricValues(t, collect(t, reader), map[string]int64{
		"success": 0, "empty": 0, "degraded": 0, "rejected": 0,
	})

	_ = store.Increment(OutcomeSuccess)
	_ = store.Increment(OutcomeSuccess)
	_ = store.Increment(OutcomeRejected)

	verifyMetricValues(t, collect(t, reader), map[string]int64{
		"success": 2, "empty": 0, "degraded": 0, "rejected": 1,
	})
}

func TestOTelMetricsWithoutStore(t *testing.T) {
	reader := setupOTelTest(t)

	verifyMetricValues(t, collect(t, reader), map[string]int64{
		"success": 0, "empty": 0, "degraded": 0, "rejected": 0,
	})
}

func TestOTelMetricDescription(t *testing.T) {
	reader := setupOTelTest(t)
	rm := collect(t, reader)

	for _, scopeMetrics := range rm.ScopeMetrics {
		if scopeMetrics.Scope.Name != "hybridgate/metrics" {
			continue
		}
		for _, m := range scopeMetrics.Metrics {
			if m.Name == "hybridgate.invocations.total" {
				if m.Unit != "{invocations}" {
					t.Errorf("Unexpected unit: %s", m.Unit)
				}
				return
			}
		}
	}
	t.Error("Metric 'hybridgate.invocations.total' not found")
}

func verifyMetricValues(t *testing.T, rm metricdata.ResourceMetrics, expected map[string]int64) {
	t.Helper()

	for _, scopeMetrics := range rm.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name != "hybridgate.invocations.total" {
				continue
			}

			gauge, ok := m.Data.(metricdata.Gauge[int64])
			if !ok {
				t.Fatalf("Expected Gauge[int64], got %T", m.Data)
			}

			results := make(map[string]int64)
			for _, dp := range gauge.DataPoints {
				if v, ok := dp.Attributes.Value("outcome"); ok {
					results[v.AsString()] = dp.Value
				}
			}

			for outcome, want := range expected {
				if results[outcome] != want {
					t.Errorf("Outcome %s: expected %d, got %d", outcome, want, results[outcome])
				}
			}
			return
		}
	}
	t.Error("Metric 'hybridgate.invocations.total' not found in collected metrics")
}

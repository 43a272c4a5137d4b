package metrics

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	otelMetricsOnce       sync.Once
	otelRegistrationError error
)

// InitOTelMetrics registers an observable gauge that reports cumulative
// invocation totals from SQLite. Call it after observability.Init.
func InitOTelMetrics() error {
	otelMetricsOnce.Do(func() {
		meter := otel.Meter("hybridgate/metrics")

		_, err := meter.Int64ObservableGauge(
			"hybridgate.invocations.total",
			metric.WithDescription("Cumulative search tool invocations by outcome (success, empty, degraded, rejected)"),
			metric.WithUnit("{invocations}"),
			metric.WithInt64Callback(invocationCallback),
		)
		if err != nil {
			log.Printf("metrics: failed to create invocation gauge: %v", err)
			otelRegistrationError = err
		}
	})
	return otelRegistrationError
}

func invocationCallback(_ context.Context, observer metric.Int64Observer) error {
	stats := GetStats()
	for _, outcome := range Outcomes {
		var count int64
		if stats != nil {
			count = stats[outcome]
		}
		observer.Observe(count, metric.WithAttributes(
			attribute.String("outcome", string(outcome)),
		))
	}
	return nil
}

// ResetOTelForTesting resets the OTel initialization state.
// This should only be used in tests.
func ResetOTelForTesting() {
	otelMetricsOnce = sync.Once{}
	otelRegistrationError = nil
}

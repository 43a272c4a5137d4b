package mcpserver

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	mcpMetricsOnce      sync.Once
	mcpRequestCounter   metric.Int64Counter
	mcpErrorCounter     metric.Int64Counter
	mcpLatencyHistogram metric.Float64Histogram
)

func initMCPMetrics() {
	mcpMetricsOnce.Do(func() {
		meter := otel.Meter("hybridgate/mcpserver")

		var err error
		mcpRequestCounter, err = meter.Int64Counter(
			"hybridgate.mcp.requests.total",
			metric.WithDescription("Total search tool requests, including rejected ones"),
		)
		if err != nil {
			log.Printf("observability: failed to create MCP request counter: %v", err)
		}

		mcpErrorCounter, err = meter.Int64Counter(
			"hybridgate.mcp.errors.total",
			metric.WithDescription("Search tool requests that were rejected or degraded"),
		)
		if err != nil {
			log.Printf("observability: failed to create MCP error counter: %v", err)
		}

		mcpLatencyHistogram, err = meter.Float64Histogram(
			"hybridgate.mcp.response_time",
			metric.WithDescription("Search tool response time (ms)"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			log.Printf("observability: failed to create MCP latency histogram: %v", err)
		}
	})
}

// recordMCPMetrics records one request. errType is empty for successful calls.
func recordMCPMetrics(ctx context.Context, attrs []attribute.KeyValue, duration time.Duration, errType string) {
	initMCPMetrics()
	if mcpRequestCounter != nil {
		mcpRequestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if mcpLatencyHistogram != nil && duration > 0 {
		mcpLatencyHistogram.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))
	}
	if errType != "" && mcpErrorCounter != nil {
		errAttrs := make([]attribute.KeyValue, len(attrs), len(attrs)+1)
		copy(errAttrs, attrs)
		errAttrs = append(errAttrs, attribute.String("error.type", errType))
		mcpErrorCounter.Add(ctx, 1, metric.WithAttributes(errAttrs...))
	}
}

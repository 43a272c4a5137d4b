package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ca-srg/hybridgate/internal/types"
)

// Init installs the global tracer and meter providers. When OpenTelemetry is
// disabled, no-export providers are installed so instrumentation stays cheap.
func Init(ctx context.Context, rootCfg *types.Config, version string) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	cfg, err := LoadConfig(rootCfg, version)
	if err != nil {
		return noop, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		mp := sdkmetric.NewMeterProvider()
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		return NewShutdownFunc(tp, mp), nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return noop, fmt.Errorf("observability: failed to build resource information: %w", err)
	}

	spanExporter, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return noop, fmt.Errorf("observability: failed to create OTLP trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(samplerFromConfig(cfg)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spanExporter),
	)

	metricExporter, err := newMetricExporter(ctx, cfg)
	if err != nil {
		_ = NewShutdownFunc(tp, nil)(ctx)
		return noop, fmt.Errorf("observability: failed to create OTLP metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.MetricExportInterval))),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return NewShutdownFunc(tp, mp), nil
}

func samplerFromConfig(cfg *Config) sdktrace.Sampler {
	switch cfg.TracesSampler {
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TracesSamplerArg))
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.AlwaysSample()
	}
}

func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	attributes := make([]attribute.KeyValue, 0, len(cfg.ResourceAttributes)+1)
	attributes = append(attributes, attribute.String(resourceServiceNameKey, cfg.ServiceName))
	for key, value := range cfg.ResourceAttributes {
		if strings.EqualFold(key, resourceServiceNameKey) {
			continue
		}
		attributes = append(attributes, attribute.String(key, value))
	}

	return resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attributes...),
	)
}

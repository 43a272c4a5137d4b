package observability

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ca-srg/hybridgate/internal/types"
)

const (
	defaultServiceName     = "hybridgate"
	protocolHTTPProtobuf   = "http/protobuf"
	protocolGRPC           = "grpc"
	resourceServiceNameKey = "service.name"
	resourceServiceVerKey  = "service.version"
)

// Config keeps OpenTelemetry runtime settings resolved from the gateway configuration.
type Config struct {
	Enabled              bool
	ServiceName          string
	ServiceVersion       string
	ExporterEndpoint     string
	ExporterProtocol     string
	ResourceAttributes   map[string]string
	TracesSampler        string
	TracesSamplerArg     float64
	MetricExportInterval time.Duration
}

// LoadConfig resolves observability settings from the root config.
func LoadConfig(cfg *types.Config, version string) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: nil root configuration provided")
	}

	resourceAttributes, err := parseResourceAttributes(cfg.OTelResourceAttributes)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to parse resource attributes: %w", err)
	}

	otelCfg := &Config{
		Enabled:            cfg.OTelEnabled,
		ServiceName:        strings.TrimSpace(cfg.OTelServiceName),
		ServiceVersion:     strings.TrimSpace(version),
		ExporterEndpoint:   strings.TrimSpace(cfg.OTelExporterOTLPEndpoint),
		ExporterProtocol:   cfg.OTelExporterOTLPProtocol,
		ResourceAttributes: resourceAttributes,
		TracesSampler:      strings.TrimSpace(cfg.OTelTracesSampler),
		TracesSamplerArg:   cfg.OTelTracesSamplerArg,
	}

	if err := otelCfg.Validate(); err != nil {
		return nil, err
	}
	return otelCfg, nil
}

// Validate fills defaults and checks the exporter settings. Exporter settings
// are only checked when OpenTelemetry is enabled.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("observability: config is nil")
	}

	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	c.ExporterProtocol = strings.ToLower(strings.TrimSpace(c.ExporterProtocol))
	if c.ExporterProtocol == "" {
		c.ExporterProtocol = protocolHTTPProtobuf
	}
	c.TracesSampler = strings.ToLower(c.TracesSampler)
	if c.TracesSampler == "" {
		c.TracesSampler = "always_on"
	}
	if c.MetricExportInterval <= 0 {
		c.MetricExportInterval = 60 * time.Second
	}
	c.ensureResourceDefaults()

	if !c.Enabled {
		return nil
	}

	if c.ExporterEndpoint == "" {
		return fmt.Errorf("observability: OTLP exporter endpoint is required when OpenTelemetry is enabled")
	}

	switch c.ExporterProtocol {
	case protocolHTTPProtobuf:
		parsed, err := url.Parse(c.ExporterEndpoint)
		if err != nil {
			return fmt.Errorf("observability: invalid OTLP exporter endpoint: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("observability: OTLP exporter endpoint must include http or https scheme when using http/protobuf protocol")
		}
		if parsed.Host == "" {
			return fmt.Errorf("observability: OTLP exporter endpoint must include a host when using http/protobuf protocol")
		}
	case protocolGRPC:
		if _, _, err := parseGRPCEndpoint(c.ExporterEndpoint); err != nil {
			return fmt.Errorf("observability: invalid OTLP exporter endpoint for grpc protocol: %w", err)
		}
	default:
		return fmt.Errorf("observability: unsupported OTLP exporter protocol %q", c.ExporterProtocol)
	}

	switch c.TracesSampler {
	case "always_on", "always_off", "parentbased_always_on":
	case "traceidratio":
		if c.TracesSamplerArg <= 0 || c.TracesSamplerArg > 1 {
			return fmt.Errorf("observability: traces sampler argument must be between 0 and 1 when sampler is traceidratio")
		}
	default:
		return fmt.Errorf("observability: unsupported traces sampler %q", c.TracesSampler)
	}

	return nil
}

// parseResourceAttributes reads the OTEL_RESOURCE_ATTRIBUTES format: key=value,key=value.
func parseResourceAttributes(input string) (map[string]string, error) {
	attributes := make(map[string]string)

	for _, pair := range strings.Split(input, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid resource attribute %q", pair)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("resource attribute key cannot be empty")
		}
		attributes[key] = strings.TrimSpace(value)
	}

	return attributes, nil
}

func (c *Config) ensureResourceDefaults() {
	if c.ResourceAttributes == nil {
		c.ResourceAttributes = make(map[string]string)
	}
	if _, ok := c.ResourceAttributes[resourceServiceNameKey]; !ok {
		c.ResourceAttributes[resourceServiceNameKey] = c.ServiceName
	}
	if _, ok := c.ResourceAttributes[resourceServiceVerKey]; !ok && c.ServiceVersion != "" {
		c.ResourceAttributes[resourceServiceVerKey] = c.ServiceVersion
	}
}

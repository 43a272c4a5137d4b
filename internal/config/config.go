package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ca-srg/hybridgate/internal/types"
	"github.com/joho/godotenv"
	env "github.com/netflix/go-env"
)

// Type alias for Config
type Config = types.Config

const maxResultsLimit = 100

// Load reads an optional .env file, decodes environment variables and
// normalizes the result. It does not validate: callers apply CLI overrides
// first and then call Validate once.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	normalizeConfig(&config)
	return &config, nil
}

// Validate normalizes cfg and checks it. requireAuth demands a shared secret
// source, which only the server needs.
func Validate(cfg *Config, requireAuth bool) error {
	normalizeConfig(cfg)
	return validateConfig(cfg, requireAuth)
}

func normalizeConfig(config *Config) {
	config.AuthHeader = strings.TrimSpace(config.AuthHeader)
	if config.AuthHeader == "" {
		config.AuthHeader = "X-API-KEY"
	}
	config.Backend = strings.ToLower(strings.TrimSpace(config.Backend))
	if config.Backend == "" {
		config.Backend = types.BackendAzure
	}
	config.OpenSearchAuthMode = strings.ToLower(strings.TrimSpace(config.OpenSearchAuthMode))
	config.AzureSearchEndpoint = strings.TrimRight(strings.TrimSpace(config.AzureSearchEndpoint), "/")

	if config.DefaultMaxResults < 1 {
		config.DefaultMaxResults = 1
	}
	if config.DefaultMaxResults > maxResultsLimit {
		config.DefaultMaxResults = maxResultsLimit
	}

	if config.MetricsDBPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			config.MetricsDBPath = filepath.Join(home, ".hybridgate", "stats.db")
		}
	}
}

func validateConfig(config *Config, requireAuth bool) error {
	if requireAuth && config.AuthKey == "" && config.AuthSecretID == "" {
		return newConfigError("MCP_AUTH_KEY", "is required (or set MCP_AUTH_SECRET_ID)")
	}

	if err := validateServerConfig(config); err != nil {
		return err
	}

	if config.RerankerThreshold < 0 {
		return newConfigError("RERANKER_THRESHOLD", "must not be negative")
	}
	if config.UseSemanticReranker && strings.TrimSpace(config.SemanticConfiguration) == "" {
		return newConfigError("SEMANTIC_CONFIGURATION", "cannot be empty when USE_SEMANTIC_RERANKER is enabled")
	}
	if strings.TrimSpace(config.VectorField) == "" {
		return newConfigError("SEARCH_VECTOR_FIELD", "cannot be empty")
	}
	if config.SearchTimeout <= 0 {
		return newConfigError("SEARCH_TIMEOUT", "must be greater than 0")
	}
	if config.SearchTimeout > 5*time.Minute {
		return newConfigError("SEARCH_TIMEOUT", "cannot exceed 5m")
	}

	switch config.Backend {
	case types.BackendAzure:
		return validateAzureConfig(config)
	case types.BackendOpenSearch:
		return validateOpenSearchConfig(config)
	default:
		return newConfigError("SEARCH_BACKEND", "must be one of azure, opensearch (got %q)", config.Backend)
	}
}

func validateServerConfig(config *Config) error {
	if config.ServerPort < 1 || config.ServerPort > 65535 {
		return newConfigError("MCP_SERVER_PORT", "must be between 1 and 65535")
	}
	if strings.TrimSpace(config.ServerHost) == "" {
		return newConfigError("MCP_SERVER_HOST", "cannot be empty")
	}
	if config.ServerReadTimeout <= 0 {
		return newConfigError("MCP_SERVER_READ_TIMEOUT", "must be greater than 0")
	}
	if config.ServerWriteTimeout <= 0 {
		return newConfigError("MCP_SERVER_WRITE_TIMEOUT", "must be greater than 0")
	}
	if config.ServerIdleTimeout <= 0 {
		return newConfigError("MCP_SERVER_IDLE_TIMEOUT", "must be greater than 0")
	}
	if config.ServerShutdownTimeout <= 0 {
		return newConfigError("MCP_SERVER_SHUTDOWN_TIMEOUT", "must be greater than 0")
	}
	if config.ServerMaxHeaderBytes <= 0 || config.ServerMaxHeaderBytes > 10<<20 {
		return newConfigError("MCP_SERVER_MAX_HEADER_BYTES", "must be between 1 and 10MB")
	}
	if !isValidToolName(config.ToolName) {
		return newConfigError("MCP_TOOL_NAME", "must be alphanumeric with underscores or hyphens (got %q)", config.ToolName)
	}
	return nil
}

func validateAzureConfig(config *Config) error {
	if config.AzureSearchEndpoint == "" {
		return newConfigError("AZURE_SEARCH_ENDPOINT", "is required when SEARCH_BACKEND=azure")
	}
	if err := validateHTTPURL("AZURE_SEARCH_ENDPOINT", config.AzureSearchEndpoint); err != nil {
		return err
	}
	if config.AzureSearchKey == "" {
		return newConfigError("AZURE_SEARCH_KEY", "is required when SEARCH_BACKEND=azure")
	}
	if config.AzureSearchIndex == "" {
		return newConfigError("AZURE_SEARCH_INDEX", "is required when SEARCH_BACKEND=azure")
	}
	if config.AzureSearchAPIVersion == "" {
		return newConfigError("AZURE_SEARCH_API_VERSION", "cannot be empty")
	}
	return validateRate("AZURE_SEARCH", config.AzureSearchRateLimit, config.AzureSearchRateBurst)
}

func validateOpenSearchConfig(config *Config) error {
	if config.OpenSearchEndpoint == "" {
		return newConfigError("OPENSEARCH_ENDPOINT", "is required when SEARCH_BACKEND=opensearch")
	}
	if err := validateHTTPURL("OPENSEARCH_ENDPOINT", config.OpenSearchEndpoint); err != nil {
		return err
	}
	if config.OpenSearchIndex == "" {
		return newConfigError("OPENSEARCH_INDEX", "is required when SEARCH_BACKEND=opensearch")
	}
	if config.OpenSearchModelID == "" {
		return newConfigError("OPENSEARCH_MODEL_ID", "is required for neural queries")
	}

	switch config.OpenSearchAuthMode {
	case types.OpenSearchAuthSigV4:
		if config.OpenSearchRegion == "" {
			return newConfigError("OPENSEARCH_REGION", "is required when OPENSEARCH_AUTH_MODE=sigv4")
		}
		if (config.AWSAccessKeyID == "") != (config.AWSSecretAccessKey == "") {
			return newConfigError("OPENSEARCH_AWS_ACCESS_KEY_ID", "and OPENSEARCH_AWS_SECRET_ACCESS_KEY must be set together")
		}
	case types.OpenSearchAuthBasic:
		if config.OpenSearchUsername == "" || config.OpenSearchPassword == "" {
			return newConfigError("OPENSEARCH_USERNAME", "and OPENSEARCH_PASSWORD are required when OPENSEARCH_AUTH_MODE=basic")
		}
	case types.OpenSearchAuthNone:
	default:
		return newConfigError("OPENSEARCH_AUTH_MODE", "must be one of sigv4, basic, none (got %q)", config.OpenSearchAuthMode)
	}

	if err := validateRate("OPENSEARCH", config.OpenSearchRateLimit, config.OpenSearchRateBurst); err != nil {
		return err
	}
	if config.OpenSearchMaxRetries < 0 || config.OpenSearchMaxRetries > 10 {
		return newConfigError("OPENSEARCH_MAX_RETRIES", "must be between 0 and 10")
	}
	if config.OpenSearchRetryDelay <= 0 {
		return newConfigError("OPENSEARCH_RETRY_DELAY", "must be greater than 0")
	}
	if config.OpenSearchMaxConnections <= 0 || config.OpenSearchMaxConnections > 100 {
		return newConfigError("OPENSEARCH_MAX_CONNECTIONS", "must be between 1 and 100")
	}
	if config.OpenSearchMaxIdleConns <= 0 || config.OpenSearchMaxIdleConns > config.OpenSearchMaxConnections {
		return newConfigError("OPENSEARCH_MAX_IDLE_CONNS", "must be between 1 and OPENSEARCH_MAX_CONNECTIONS")
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return newConfigError(field, "is not a valid URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return newConfigError(field, "must use http or https scheme")
	}
	if parsed.Host == "" {
		return newConfigError(field, "must include a valid host")
	}
	return nil
}

func validateRate(prefix string, limit float64, burst int) error {
	if limit <= 0 {
		return newConfigError(prefix+"_RATE_LIMIT", "must be greater than 0")
	}
	if limit > 1000 {
		return newConfigError(prefix+"_RATE_LIMIT", "cannot exceed 1000 requests/second")
	}
	if burst <= 0 {
		return newConfigError(prefix+"_RATE_BURST", "must be greater than 0")
	}
	if burst > int(limit*10) {
		return newConfigError(prefix+"_RATE_BURST", "should not exceed 10x the rate limit")
	}
	return nil
}

// isValidToolName checks if a tool name is valid for MCP clients
func isValidToolName(name string) bool {
	if len(name) == 0 || len(name) > 64 {
		return false
	}

	for _, char := range name {
		if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') || char == '_' || char == '-') {
			return false
		}
	}

	return true
}

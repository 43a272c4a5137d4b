package types

import "time"

// ErrorType represents the type of error that occurred
type ErrorType string

const (
	ErrorTypeNetworkTimeout ErrorType = "network_timeout"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeConfiguration  ErrorType = "configuration"
	ErrorTypeResponse       ErrorType = "response"
	ErrorTypeUnknown        ErrorType = "unknown"
	// Backend specific error types
	ErrorTypeBackendConnection ErrorType = "backend_connection"
	ErrorTypeBackendQuery      ErrorType = "backend_query"
)

// Backend names accepted by SEARCH_BACKEND
const (
	BackendAzure      = "azure"
	BackendOpenSearch = "opensearch"
)

// OpenSearch authentication modes
const (
	OpenSearchAuthSigV4 = "sigv4"
	OpenSearchAuthBasic = "basic"
	OpenSearchAuthNone  = "none"
)

// Config is the process-wide configuration. It is loaded once at startup and
// never mutated by request handling.
type Config struct {
	// Shared-secret authentication
	AuthKey      string `json:"-" env:"MCP_AUTH_KEY"`
	AuthSecretID string `json:"auth_secret_id" env:"MCP_AUTH_SECRET_ID"`
	AuthHeader   string `json:"auth_header" env:"MCP_AUTH_HEADER,default=X-API-KEY"`

	// MCP server
	ServerHost            string        `json:"server_host" env:"MCP_SERVER_HOST,default=0.0.0.0"`
	ServerPort            int           `json:"server_port" env:"MCP_SERVER_PORT,default=8050"`
	ServerReadTimeout     time.Duration `json:"server_read_timeout" env:"MCP_SERVER_READ_TIMEOUT,default=30s"`
	ServerWriteTimeout    time.Duration `json:"server_write_timeout" env:"MCP_SERVER_WRITE_TIMEOUT,default=60s"`
	ServerIdleTimeout     time.Duration `json:"server_idle_timeout" env:"MCP_SERVER_IDLE_TIMEOUT,default=120s"`
	ServerShutdownTimeout time.Duration `json:"server_shutdown_timeout" env:"MCP_SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ServerMaxHeaderBytes  int           `json:"server_max_header_bytes" env:"MCP_SERVER_MAX_HEADER_BYTES,default=1048576"`
	ToolName              string        `json:"tool_name" env:"MCP_TOOL_NAME,default=search"`

	// Query policy
	UseSemanticReranker   bool          `json:"use_semantic_reranker" env:"USE_SEMANTIC_RERANKER,default=false"`
	RerankerThreshold     float64       `json:"reranker_threshold" env:"RERANKER_THRESHOLD,default=2.5"`
	SemanticConfiguration string        `json:"semantic_configuration" env:"SEMANTIC_CONFIGURATION,default=sops-semantic-configuration"`
	VectorField           string        `json:"vector_field" env:"SEARCH_VECTOR_FIELD,default=text_vector"`
	DefaultMaxResults     int           `json:"default_max_results" env:"SEARCH_DEFAULT_MAX_RESULTS,default=5"`
	SearchTimeout         time.Duration `json:"search_timeout" env:"SEARCH_TIMEOUT,default=30s"`
	Backend               string        `json:"backend" env:"SEARCH_BACKEND,default=azure"`

	// Azure AI Search backend
	AzureSearchEndpoint   string  `json:"azure_search_endpoint" env:"AZURE_SEARCH_ENDPOINT"`
	AzureSearchKey        string  `json:"-" env:"AZURE_SEARCH_KEY"`
	AzureSearchIndex      string  `json:"azure_search_index" env:"AZURE_SEARCH_INDEX"`
	AzureSearchAPIVersion string  `json:"azure_search_api_version" env:"AZURE_SEARCH_API_VERSION,default=2024-07-01"`
	AzureSearchRateLimit  float64 `json:"azure_search_rate_limit" env:"AZURE_SEARCH_RATE_LIMIT,default=10.0"`
	AzureSearchRateBurst  int     `json:"azure_search_rate_burst" env:"AZURE_SEARCH_RATE_BURST,default=20"`

	// OpenSearch backend
	OpenSearchEndpoint        string        `json:"opensearch_endpoint" env:"OPENSEARCH_ENDPOINT"`
	OpenSearchIndex           string        `json:"opensearch_index" env:"OPENSEARCH_INDEX"`
	OpenSearchRegion          string        `json:"opensearch_region" env:"OPENSEARCH_REGION,default=us-east-1"`
	OpenSearchAuthMode        string        `json:"opensearch_auth_mode" env:"OPENSEARCH_AUTH_MODE,default=sigv4"`
	OpenSearchUsername        string        `json:"opensearch_username" env:"OPENSEARCH_USERNAME"`
	OpenSearchPassword        string        `json:"-" env:"OPENSEARCH_PASSWORD"`
	OpenSearchModelID         string        `json:"opensearch_model_id" env:"OPENSEARCH_MODEL_ID"`
	OpenSearchTextField       string        `json:"opensearch_text_field" env:"OPENSEARCH_TEXT_FIELD,default=chunk"`
	OpenSearchInsecureSkipTLS bool          `json:"opensearch_insecure_skip_tls" env:"OPENSEARCH_INSECURE_SKIP_TLS,default=false"`
	OpenSearchRateLimit       float64       `json:"opensearch_rate_limit" env:"OPENSEARCH_RATE_LIMIT,default=10.0"`
	OpenSearchRateBurst       int           `json:"opensearch_rate_burst" env:"OPENSEARCH_RATE_BURST,default=20"`
	OpenSearchMaxRetries      int           `json:"opensearch_max_retries" env:"OPENSEARCH_MAX_RETRIES,default=3"`
	OpenSearchRetryDelay      time.Duration `json:"opensearch_retry_delay" env:"OPENSEARCH_RETRY_DELAY,default=1s"`
	OpenSearchMaxConnections  int           `json:"opensearch_max_connections" env:"OPENSEARCH_MAX_CONNECTIONS,default=100"`
	OpenSearchMaxIdleConns    int           `json:"opensearch_max_idle_conns" env:"OPENSEARCH_MAX_IDLE_CONNS,default=10"`

	// AWS (Secrets Manager and SigV4 static credentials)
	AWSRegion          string `json:"aws_region" env:"AWS_REGION,default=us-east-1"`
	AWSAccessKeyID     string `json:"-" env:"OPENSEARCH_AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `json:"-" env:"OPENSEARCH_AWS_SECRET_ACCESS_KEY"`
	AWSSessionToken    string `json:"-" env:"OPENSEARCH_AWS_SESSION_TOKEN"`

	// Invocation metrics
	MetricsEnabled bool   `json:"metrics_enabled" env:"METRICS_ENABLED,default=true"`
	MetricsDBPath  string `json:"metrics_db_path" env:"METRICS_DB_PATH"`

	// OpenTelemetry
	OTelEnabled              bool    `json:"otel_enabled" env:"OTEL_ENABLED,default=false"`
	OTelServiceName          string  `json:"otel_service_name" env:"OTEL_SERVICE_NAME,default=hybridgate"`
	OTelExporterOTLPEndpoint string  `json:"otel_exporter_otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelExporterOTLPProtocol string  `json:"otel_exporter_otlp_protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL,default=http/protobuf"`
	OTelResourceAttributes   string  `json:"otel_resource_attributes" env:"OTEL_RESOURCE_ATTRIBUTES"`
	OTelTracesSampler        string  `json:"otel_traces_sampler" env:"OTEL_TRACES_SAMPLER,default=always_on"`
	OTelTracesSamplerArg     float64 `json:"otel_traces_sampler_arg" env:"OTEL_TRACES_SAMPLER_ARG,default=1.0"`
}

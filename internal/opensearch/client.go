package opensearch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	opensearch "github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	requestsigner "github.com/opensearch-project/opensearch-go/v4/signer/awsv2"
	"golang.org/x/time/rate"

	"github.com/ca-srg/hybridgate/internal/types"
)

type Client struct {
	client      *opensearchapi.Client
	rateLimiter *rate.Limiter
	config      *Config
	logger      *log.Logger
	stats       requestStats
}

type Config struct {
	Endpoint        string
	Index           string
	Region          string
	AuthMode        string
	Username        string
	Password        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ModelID         string
	TextField       string
	InsecureSkipTLS bool
	RateLimit       float64
	RateBurst       int
	RequestTimeout  time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	MaxConnections  int
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

func NewConfigFromTypes(cfg *types.Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Config{
		Endpoint:        cfg.OpenSearchEndpoint,
		Index:           cfg.OpenSearchIndex,
		Region:          cfg.OpenSearchRegion,
		AuthMode:        cfg.OpenSearchAuthMode,
		Username:        cfg.OpenSearchUsername,
		Password:        cfg.OpenSearchPassword,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		SessionToken:    cfg.AWSSessionToken,
		ModelID:         cfg.OpenSearchModelID,
		TextField:       cfg.OpenSearchTextField,
		InsecureSkipTLS: cfg.OpenSearchInsecureSkipTLS,
		RateLimit:       cfg.OpenSearchRateLimit,
		RateBurst:       cfg.OpenSearchRateBurst,
		RequestTimeout:  cfg.SearchTimeout,
		MaxRetries:      cfg.OpenSearchMaxRetries,
		RetryDelay:      cfg.OpenSearchRetryDelay,
		MaxConnections:  cfg.OpenSearchMaxConnections,
		MaxIdleConns:    cfg.OpenSearchMaxIdleConns,
	}, nil
}

func (c *Config) applyDefaults() {
	if c.AuthMode == "" {
		c.AuthMode = types.OpenSearchAuthSigV4
	}
	if c.TextField == "" {
		c.TextField = "chunk"
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10.0
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 20
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 1 * time.Second
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 100
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 10
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
}

func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("index is required")
	}
	cfg.applyDefaults()

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipTLS,
		},
		MaxConnsPerHost:       cfg.MaxConnections,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   max(cfg.MaxIdleConns/2, 1),
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
	}

	osConfig := opensearch.Config{
		Addresses: []string{cfg.Endpoint},
		Transport: transport,
	}

	switch cfg.AuthMode {
	case types.OpenSearchAuthSigV4:
		if cfg.Region == "" {
			return nil, fmt.Errorf("region is required for sigv4 auth")
		}
		awsConfig, err := loadAWSConfig(cfg)
		if err != nil {
			return nil, err
		}
		signer, err := requestsigner.NewSignerWithService(awsConfig, "es")
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS signer: %w", err)
		}
		osConfig.Signer = signer
	case types.OpenSearchAuthBasic:
		osConfig.Username = cfg.Username
		osConfig.Password = cfg.Password
	case types.OpenSearchAuthNone:
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}

	osClient, err := opensearchapi.NewClient(opensearchapi.Config{Client: osConfig})
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
	}

	return &Client{
		client:      osClient,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		config:      cfg,
		logger:      log.New(os.Stdout, "[OpenSearch] ", log.LstdFlags),
	}, nil
}

func loadAWSConfig(cfg *Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsConfig, nil
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(logger *log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// HealthCheck queries cluster health once.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.WaitForRateLimit(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	resp, err := c.client.Cluster.Health(ctx, &opensearchapi.ClusterHealthReq{})
	if err != nil {
		return ClassifyConnectionError(err)
	}
	if resp != nil {
		c.logger.Printf("Cluster health: status=%s", resp.Status)
	}
	return nil
}

// Ping checks cluster health with retry. Used at startup only; queries are
// never retried.
func (c *Client) Ping(ctx context.Context) error {
	return c.ExecuteWithRetry(ctx, func() error { return c.HealthCheck(ctx) }, "HealthCheck")
}

func (c *Client) WaitForRateLimit(ctx context.Context) error {
	return c.rateLimiter.Wait(ctx)
}

// RetryableOperation defines a function that can be retried
type RetryableOperation func() error

// ExecuteWithRetry executes an operation with exponential backoff retry logic
func (c *Client) ExecuteWithRetry(ctx context.Context, operation RetryableOperation, operationName string) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.RetryDelay
			c.logger.Printf("Retrying %s after %v (attempt %d/%d)",
				operationName, delay, attempt, c.config.MaxRetries)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				c.logger.Printf("%s succeeded after %d retries", operationName, attempt)
			}
			return nil
		}
		lastErr = err

		var searchErr *SearchError
		if errors.As(err, &searchErr) && !searchErr.IsRetryable() {
			c.logger.Printf("%s failed with non-retryable error: %v", operationName, err)
			return err
		}
		c.logger.Printf("%s failed (attempt %d/%d): %v",
			operationName, attempt+1, c.config.MaxRetries+1, err)
	}

	return fmt.Errorf("%s failed after %d attempts, last error: %w",
		operationName, c.config.MaxRetries+1, lastErr)
}

type requestStats struct {
	requests   atomic.Int64
	failures   atomic.Int64
	totalNanos atomic.Int64
}

// PerformanceMetrics is a snapshot of the client's request statistics.
type PerformanceMetrics struct {
	RequestCount   int64
	SuccessCount   int64
	ErrorCount     int64
	AverageLatency time.Duration
}

// RecordRequest records request metrics
func (c *Client) RecordRequest(duration time.Duration, success bool) {
	c.stats.requests.Add(1)
	c.stats.totalNanos.Add(int64(duration))
	if !success {
		c.stats.failures.Add(1)
	}
}

// GetMetrics returns current performance metrics
func (c *Client) GetMetrics() PerformanceMetrics {
	requests := c.stats.requests.Load()
	failures := c.stats.failures.Load()
	m := PerformanceMetrics{
		RequestCount: requests,
		SuccessCount: requests - failures,
		ErrorCount:   failures,
	}
	if requests > 0 {
		m.AverageLatency = time.Duration(c.stats.totalNanos.Load() / requests)
	}
	return m
}

// LogMetrics logs current performance metrics
func (c *Client) LogMetrics() {
	m := c.GetMetrics()
	c.logger.Printf("Client metrics: requests=%d success=%d errors=%d avg_latency=%v",
		m.RequestCount, m.SuccessCount, m.ErrorCount, m.AverageLatency)
}

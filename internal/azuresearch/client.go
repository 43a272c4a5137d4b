package azuresearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ca-srg/hybridgate/internal/types"
	"golang.org/x/time/rate"
)

const (
	backendName     = "azure"
	selectFields    = "chunk,title,url"
	maxErrorBodyLen = 64 << 10
)

// Config holds the connection parameters for an Azure AI Search index.
type Config struct {
	Endpoint   string
	APIKey     string
	Index      string
	APIVersion string
	RateLimit  float64
	RateBurst  int
	// HTTPClient is optional; a pooled client is created when nil.
	HTTPClient *http.Client
}

// NewConfigFromTypes builds a client config from the root configuration.
func NewConfigFromTypes(cfg *types.Config) *Config {
	return &Config{
		Endpoint:   cfg.AzureSearchEndpoint,
		APIKey:     cfg.AzureSearchKey,
		Index:      cfg.AzureSearchIndex,
		APIVersion: cfg.AzureSearchAPIVersion,
		RateLimit:  cfg.AzureSearchRateLimit,
		RateBurst:  cfg.AzureSearchRateBurst,
	}
}

// Client queries one index over the REST API. Vectorization of the query
// text is done by the index's integrated vectorizer.
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	config      *Config
	logger      *log.Logger
}

func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("index is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-07-01"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10.0
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	return &Client{
		httpClient:  httpClient,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		config:      cfg,
		logger:      log.New(os.Stdout, "[AzureSearch] ", log.LstdFlags),
	}, nil
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(logger *log.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

func (c *Client) Name() string {
	return backendName
}

type vectorQuery struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	K      int    `json:"k"`
	Fields string `json:"fields"`
}

type searchBody struct {
	Search                string        `json:"search"`
	VectorQueries         []vectorQuery `json:"vectorQueries"`
	Top                   int           `json:"top"`
	Select                string        `json:"select"`
	QueryType             string        `json:"queryType,omitempty"`
	SemanticConfiguration string        `json:"semanticConfiguration,omitempty"`
	Captions              string        `json:"captions,omitempty"`
}

type searchDocument struct {
	Score         float64  `json:"@search.score"`
	RerankerScore *float64 `json:"@search.rerankerScore"`
	Chunk         string   `json:"chunk"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
}

type searchResponse struct {
	Value []searchDocument `json:"value"`
}

func buildSearchBody(plan *types.QueryPlan) searchBody {
	body := searchBody{
		Search: plan.Query,
		VectorQueries: []vectorQuery{{
			Kind:   "text",
			Text:   plan.Query,
			K:      plan.KNearestNeighbors,
			Fields: plan.VectorField,
		}},
		Top:    plan.Top,
		Select: selectFields,
	}
	if plan.Rerank {
		body.QueryType = "semantic"
		body.SemanticConfiguration = plan.SemanticConfiguration
		body.Captions = "extractive"
	}
	return body
}

// Search issues one hybrid query and returns hits in service order.
func (c *Client) Search(ctx context.Context, plan *types.QueryPlan) ([]types.RawHit, error) {
	if plan == nil {
		return nil, fmt.Errorf("query plan cannot be nil")
	}

	payload, err := json.Marshal(buildSearchBody(plan))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}

	endpoint := c.indexURL("docs/search")
	var parsed searchResponse
	if err := c.do(ctx, http.MethodPost, endpoint, payload, &parsed); err != nil {
		return nil, err
	}

	hits := make([]types.RawHit, 0, len(parsed.Value))
	for _, doc := range parsed.Value {
		hits = append(hits, types.RawHit{
			Chunk:         doc.Chunk,
			Title:         doc.Title,
			URL:           doc.URL,
			Score:         doc.Score,
			RerankerScore: doc.RerankerScore,
		})
	}
	return hits, nil
}

// Ping reads the index statistics to confirm the key and index are valid.
func (c *Client) Ping(ctx context.Context) error {
	var stats struct {
		DocumentCount int64 `json:"documentCount"`
	}
	if err := c.do(ctx, http.MethodGet, c.indexURL("stats"), nil, &stats); err != nil {
		return err
	}
	c.logger.Printf("Index %s reachable: documents=%d", c.config.Index, stats.DocumentCount)
	return nil
}

func (c *Client) indexURL(suffix string) string {
	return fmt.Sprintf("%s/indexes/%s/%s?api-version=%s",
		c.config.Endpoint, url.PathEscape(c.config.Index), suffix, url.QueryEscape(c.config.APIVersion))
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("rate limiter: %w", ctxErr)
		}
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("api-key", c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("azure search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		apiErr := classifyResponse(resp.StatusCode, raw)
		c.logger.Printf("Request failed: method=%s status=%d duration=%v error=%v",
			method, resp.StatusCode, time.Since(start), apiErr)
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode azure search response: %w", err)
	}
	return nil
}

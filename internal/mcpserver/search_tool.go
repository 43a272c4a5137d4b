package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ca-srg/hybridgate/internal/metrics"
	"github.com/ca-srg/hybridgate/internal/search"
	"github.com/ca-srg/hybridgate/internal/types"
)

const toolDescription = "Search the internal knowledge base with a combined keyword and vector query. " +
	"Returns a list of {chunk, title, url} passages ordered by relevance."

var toolTracer = otel.Tracer("hybridgate/mcpserver")

// Searcher runs one search request. Failures are reported in the Outcome.
type Searcher interface {
	Search(ctx context.Context, req types.SearchRequest) search.Outcome
	BackendName() string
}

// SearchTool adapts a Searcher to an MCP tool.
type SearchTool struct {
	name              string
	searcher          Searcher
	defaultMaxResults int
	logger            *log.Logger
}

type searchArguments struct {
	Query      string `json:"query"`
	MaxResults *int   `json:"max_results,omitempty"`
}

// NewSearchTool creates the tool. defaultMaxResults applies when a caller omits max_results.
func NewSearchTool(name string, searcher Searcher, defaultMaxResults int) (*SearchTool, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	if name == "" {
		name = "search"
	}
	if defaultMaxResults < 1 || defaultMaxResults > search.MaxResultsLimit {
		defaultMaxResults = 5
	}

	return &SearchTool{
		name:              name,
		searcher:          searcher,
		defaultMaxResults: defaultMaxResults,
		logger:            log.New(os.Stdout, "[SearchTool] ", log.LstdFlags),
	}, nil
}

// SetLogger replaces the tool logger.
func (t *SearchTool) SetLogger(logger *log.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// Name returns the registered tool name.
func (t *SearchTool) Name() string {
	return t.name
}

// Definition returns the MCP tool definition with its input schema.
func (t *SearchTool) Definition() *mcp.Tool {
	defaultMax, _ := json.Marshal(t.defaultMaxResults)

	return &mcp.Tool{
		Name:        t.name,
		Description: toolDescription,
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Natural-language search query",
				},
				"max_results": {
					Type:        "integer",
					Description: "Maximum number of passages to return",
					Default:     defaultMax,
					Minimum:     jsonschema.Ptr(1.0),
					Maximum:     jsonschema.Ptr(float64(search.MaxResultsLimit)),
				},
			},
			Required: []string{"query"},
		},
	}
}

// Handle is the MCP tool handler. It always returns a well-formed result:
// failures become a single "Search Error" entry rather than a protocol error.
func (t *SearchTool) Handle(ctx context.Context, req *mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
	start := time.Now()
	requestID := ""
	if req != nil && req.Extra != nil {
		requestID = requestIDFromHeader(req.Extra.Header)
	}

	ctx, span := toolTracer.Start(ctx, "mcp.tool.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("mcp.tool.name", t.name),
		attribute.String("mcp.request_id", requestID),
	)

	outcome := metrics.OutcomeDegraded
	defer func() {
		if r := recover(); r != nil {
			t.logger.Printf("Recovered panic in search tool: request_id=%s panic=%v", requestID, r)
			span.SetStatus(codes.Error, "panic")
			outcome = metrics.OutcomeDegraded
			result, err = buildToolResult([]types.FormattedResult{search.DegradedResult(fmt.Sprint(r))})
		}

		attrs := []attribute.KeyValue{
			attribute.String("mcp.tool.name", t.name),
			attribute.String("mcp.outcome", string(outcome)),
			attribute.String("search.backend", t.searcher.BackendName()),
		}
		errType := ""
		if outcome == metrics.OutcomeDegraded {
			errType = "degraded"
		}
		metrics.RecordInvocation(outcome)
		recordMCPMetrics(ctx, attrs, time.Since(start), errType)
	}()

	searchReq, decodeErr := t.decodeArguments(req)
	if decodeErr != nil {
		t.logger.Printf("Invalid arguments: request_id=%s error=%v", requestID, decodeErr)
		span.RecordError(decodeErr)
		span.SetStatus(codes.Error, "invalid_arguments")
		return buildToolResult([]types.FormattedResult{search.DegradedResult(decodeErr.Error())})
	}

	searchOutcome := t.searcher.Search(ctx, searchReq)
	results := searchOutcome.Results()
	if searchOutcome.Failed() {
		t.logger.Printf("Search degraded: request_id=%s duration=%v reason=%s",
			requestID, searchOutcome.Duration, search.FailureMessage(searchOutcome.Err))
		span.RecordError(searchOutcome.Err)
		span.SetStatus(codes.Error, "degraded")
		return buildToolResult(results)
	}

	if len(results) == 0 {
		outcome = metrics.OutcomeEmpty
	} else {
		outcome = metrics.OutcomeSuccess
	}
	span.SetAttributes(attribute.Int("mcp.results", len(results)))
	span.SetStatus(codes.Ok, string(outcome))
	t.logger.Printf("Search served: request_id=%s results=%d duration=%v", requestID, len(results), time.Since(start))

	return buildToolResult(results)
}

func (t *SearchTool) decodeArguments(req *mcp.CallToolRequest) (types.SearchRequest, error) {
	if req == nil || req.Params == nil {
		return types.SearchRequest{}, errors.New("missing tool call parameters")
	}

	var args searchArguments
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return types.SearchRequest{}, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	maxResults := t.defaultMaxResults
	if args.MaxResults != nil {
		maxResults = *args.MaxResults
	}
	return types.SearchRequest{Query: args.Query, MaxResults: maxResults}, nil
}

// buildToolResult renders results as JSON text content and as structured
// content under the "result" key.
func buildToolResult(results []types.FormattedResult) (*mcp.CallToolResult, error) {
	if results == nil {
		results = []types.FormattedResult{}
	}

	payload, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search results: %w", err)
	}

	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		StructuredContent: map[string]any{"result": results},
	}, nil
}

package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/hybridgate/internal/metrics"
	"github.com/ca-srg/hybridgate/internal/search"
	"github.com/ca-srg/hybridgate/internal/types"
)

func callRaw(t *testing.T, tool *SearchTool, args string) []types.FormattedResult {
	t.Helper()
	res, err := tool.Handle(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: "search", Arguments: json.RawMessage(args)},
	})
	require.NoError(t, err)
	return decodeResults(t, res)
}

func TestSearchToolFormatsResults(t *testing.T) {
	backend := &stubBackend{hits: []types.RawHit{
		{Chunk: "Receipts within 30 days.", Title: "Expense-Policy.pdf", URL: "https://kb/expense"},
		{Chunk: "Use the portal.", Title: "Travel", URL: "https://kb/travel"},
	}}
	tool := newTestTool(t, backend, search.Options{})

	results := callRaw(t, tool, `{"query":"expenses","max_results":2}`)

	require.Equal(t, []types.FormattedResult{
		{Chunk: "Receipts within 30 days.", Title: "Expense-Policy", URL: "https://kb/expense"},
		{Chunk: "Use the portal.", Title: "Travel", URL: "https://kb/travel"},
	}, results)
}

func TestSearchToolDefaultMaxResults(t *testing.T) {
	backend := &stubBackend{}
	tool := newTestTool(t, backend, search.Options{})

	results := callRaw(t, tool, `{"query":"anything"}`)
	require.Empty(t, results)
	require.NotNil(t, results)

	require.Len(t, backend.plans, 1)
	assert.Equal(t, 5, backend.plans[0].MaxResults)
	assert.Equal(t, 5, backend.plans[0].KNearestNeighbors)
}

func TestSearchToolRerankOversamplesAndFilters(t *testing.T) {
	backend := &stubBackend{hits: []types.RawHit{
		{Title: "a", RerankerScore: score(3.1)},
		{Title: "b", RerankerScore: score(1.0)},
		{Title: "c", RerankerScore: score(2.5)},
		{Title: "d"},
		{Title: "e", RerankerScore: score(2.9)},
	}}
	tool := newTestTool(t, backend, search.Options{
		UseSemanticReranker:   true,
		RerankerThreshold:     2.5,
		SemanticConfiguration: "sops-semantic-configuration",
	})

	results := callRaw(t, tool, `{"query":"policy","max_results":2}`)

	require.Len(t, backend.plans, 1)
	assert.Equal(t, types.RerankCandidatePool, backend.plans[0].KNearestNeighbors)
	assert.Equal(t, types.RerankCandidatePool, backend.plans[0].Top)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Title)
	assert.Equal(t, "c", results[1].Title)
}

func TestSearchToolDegradedResults(t *testing.T) {
	tests := []struct {
		name        string
		backend     *stubBackend
		timeout     time.Duration
		args        string
		wantMessage string
		wantCalls   int32
	}{
		{
			name:        "backend timeout",
			backend:     &stubBackend{block: true},
			timeout:     50 * time.Millisecond,
			args:        `{"query":"q"}`,
			wantMessage: "Could not perform a search at this time: timeout",
			wantCalls:   1,
		},
		{
			name:        "backend error",
			backend:     &stubBackend{err: errors.New("connection refused")},
			args:        `{"query":"q"}`,
			wantMessage: "Could not perform a search at this time: connection refused",
			wantCalls:   1,
		},
		{
			name:        "blank query",
			backend:     &stubBackend{},
			args:        `{"query":"   "}`,
			wantMessage: "Could not perform a search at this time: query must not be empty",
		},
		{
			name:        "max_results too large",
			backend:     &stubBackend{},
			args:        `{"query":"q","max_results":101}`,
			wantMessage: "Could not perform a search at this time: max_results must be between 1 and 100",
		},
		{
			name:        "max_results zero",
			backend:     &stubBackend{},
			args:        `{"query":"q","max_results":0}`,
			wantMessage: "Could not perform a search at this time: max_results must be between 1 and 100",
		},
		{
			name:      "malformed arguments",
			backend:   &stubBackend{},
			args:      `{"query":42}`,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := newTestTool(t, tt.backend, search.Options{Timeout: tt.timeout})

			results := callRaw(t, tool, tt.args)

			require.Len(t, results, 1)
			assert.Equal(t, "Search Error", results[0].Title)
			assert.Equal(t, "", results[0].URL)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, results[0].Chunk)
			} else {
				assert.Contains(t, results[0].Chunk, "Could not perform a search at this time: ")
			}
			assert.Equal(t, tt.wantCalls, tt.backend.calls.Load())
		})
	}
}

type panickingSearcher struct{}

func (panickingSearcher) Search(context.Context, types.SearchRequest) search.Outcome {
	panic("boom")
}

func (panickingSearcher) BackendName() string { return "panic" }

func TestSearchToolRecoversPanic(t *testing.T) {
	tool, err := NewSearchTool("search", panickingSearcher{}, 5)
	require.NoError(t, err)
	tool.SetLogger(discardLogger)

	results := callRaw(t, tool, `{"query":"q"}`)
	require.Equal(t, []types.FormattedResult{{
		Title: "Search Error",
		URL:   "",
		Chunk: "Could not perform a search at this time: boom",
	}}, results)
}

func TestSearchToolRecordsOutcomes(t *testing.T) {
	metrics.ResetForTesting()
	defer metrics.ResetForTesting()
	require.NoError(t, metrics.Init(filepath.Join(t.TempDir(), "stats.db")))

	hitBackend := &stubBackend{hits: []types.RawHit{{Title: "x"}}}
	callRaw(t, newTestTool(t, hitBackend, search.Options{}), `{"query":"q"}`)
	callRaw(t, newTestTool(t, &stubBackend{}, search.Options{}), `{"query":"q"}`)
	callRaw(t, newTestTool(t, &stubBackend{err: errors.New("down")}, search.Options{}), `{"query":"q"}`)

	stats := metrics.GetStats()
	assert.EqualValues(t, 1, stats[metrics.OutcomeSuccess])
	assert.EqualValues(t, 1, stats[metrics.OutcomeEmpty])
	assert.EqualValues(t, 1, stats[metrics.OutcomeDegraded])
}

func TestSearchToolStructuredContent(t *testing.T) {
	res, err := buildToolResult(nil)
	require.NoError(t, err)

	text := res.Content[0].(*mcp.TextContent).Text
	assert.Equal(t, "[]", text)

	structured, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []types.FormattedResult{}, structured["result"])
}

func TestSearchToolOverInMemoryTransport(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{hits: []types.RawHit{{Chunk: "c", Title: "Guide.md", URL: "u"}}}
	sw := newTestWrapper(t, newTestTool(t, backend, search.Options{}))

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := sw.SDKServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "search", tools.Tools[0].Name)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search",
		Arguments: map[string]any{"query": "guide", "max_results": 3},
	})
	require.NoError(t, err)

	results := decodeResults(t, res)
	require.Equal(t, []types.FormattedResult{{Chunk: "c", Title: "Guide", URL: "u"}}, results)
}

package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/hybridgate/internal/search"
	"github.com/ca-srg/hybridgate/internal/types"
)

const testSecret = "s3cret-key"

var discardLogger = log.New(io.Discard, "", 0)

type stubBackend struct {
	mu    sync.Mutex
	hits  []types.RawHit
	err   error
	block bool
	plans []types.QueryPlan
	calls atomic.Int32
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Search(ctx context.Context, plan *types.QueryPlan) ([]types.RawHit, error) {
	b.calls.Add(1)
	b.mu.Lock()
	b.plans = append(b.plans, *plan)
	b.mu.Unlock()

	if b.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.hits, nil
}

func newTestTool(t *testing.T, backend search.Backend, opts search.Options) *SearchTool {
	t.Helper()
	orchestrator, err := search.NewOrchestrator(backend, opts)
	require.NoError(t, err)
	orchestrator.SetLogger(discardLogger)

	tool, err := NewSearchTool("search", orchestrator, 5)
	require.NoError(t, err)
	tool.SetLogger(discardLogger)
	return tool
}

func newTestWrapper(t *testing.T, tool *SearchTool) *ServerWrapper {
	t.Helper()
	gate, err := NewAuthGate("X-API-KEY", testSecret, healthPath)
	require.NoError(t, err)
	gate.SetLogger(discardLogger)

	sw, err := NewServerWrapper(ServerConfig{Host: "127.0.0.1", Port: 0, ShutdownTimeout: time.Second}, gate, "test")
	require.NoError(t, err)
	sw.SetLogger(discardLogger)
	require.NoError(t, sw.RegisterSearchTool(tool))
	return sw
}

func decodeResults(t *testing.T, res *mcp.CallToolResult) []types.FormattedResult {
	t.Helper()
	require.NotNil(t, res)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])

	var results []types.FormattedResult
	require.NoError(t, json.Unmarshal([]byte(text.Text), &results))
	return results
}

func score(v float64) *float64 { return &v }

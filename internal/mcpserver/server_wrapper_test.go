package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ca-srg/hybridgate/internal/search"
	"github.com/ca-srg/hybridgate/internal/types"
)

type headerTransport struct {
	header string
	value  string
	base   http.RoundTripper
}

func (h *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set(h.header, h.value)
	return h.base.RoundTrip(r)
}

func connectClient(t *testing.T, endpoint, key string) (*mcp.ClientSession, error) {
	t.Helper()
	transport := &mcp.StreamableClientTransport{
		Endpoint: endpoint,
		HTTPClient: &http.Client{
			Transport: &headerTransport{header: "X-API-KEY", value: key, base: http.DefaultTransport},
			Timeout:   5 * time.Second,
		},
		MaxRetries:           -1,
		DisableStandaloneSSE: true,
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Connect(ctx, transport, nil)
}

func TestServerWrapperHealthIsUnauthenticated(t *testing.T) {
	sw := newTestWrapper(t, newTestTool(t, &stubBackend{}, search.Options{}))
	server := httptest.NewServer(sw.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]string{"status": "healthy"}, body)
}

func TestServerWrapperHealthOnlyAnswersGet(t *testing.T) {
	backend := &stubBackend{}
	sw := newTestWrapper(t, newTestTool(t, backend, search.Options{}))
	server := httptest.NewServer(sw.Handler())
	defer server.Close()

	call := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search","arguments":{"query":"q"}}}`
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		req, err := http.NewRequest(method, server.URL+"/health", strings.NewReader(call))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, method)
		assert.Equal(t, "GET, HEAD", resp.Header.Get("Allow"))
	}
	assert.Zero(t, backend.calls.Load())
}

func TestServerWrapperRejectsWithoutSecret(t *testing.T) {
	backend := &stubBackend{hits: []types.RawHit{{Title: "x"}}}
	sw := newTestWrapper(t, newTestTool(t, backend, search.Options{}))
	server := httptest.NewServer(sw.Handler())
	defer server.Close()

	call := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search","arguments":{"query":"q"}}}`
	for _, path := range []string{"/", "/mcp"} {
		req, err := http.NewRequest(http.MethodPost, server.URL+path, strings.NewReader(call))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")
		req.Header.Set("X-API-KEY", "wrong")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, map[string]string{"error": "Unauthorized"}, body)
	}

	_, err := connectClient(t, server.URL+"/mcp", "wrong")
	require.Error(t, err)

	assert.Zero(t, backend.calls.Load(), "backend must not be called for rejected requests")
}

func TestServerWrapperEndToEnd(t *testing.T) {
	backend := &stubBackend{hits: []types.RawHit{
		{Chunk: "Submit within 30 days.", Title: "Policy-21.pdf", URL: "https://kb/policy-21"},
	}}
	sw := newTestWrapper(t, newTestTool(t, backend, search.Options{}))
	server := httptest.NewServer(sw.Handler())
	defer server.Close()

	session, err := connectClient(t, server.URL+"/mcp", testSecret)
	require.NoError(t, err)
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search",
		Arguments: map[string]any{"query": "expense deadline", "max_results": 1},
	})
	require.NoError(t, err)

	results := decodeResults(t, res)
	require.Equal(t, []types.FormattedResult{{
		Chunk: "Submit within 30 days.",
		Title: "Policy-21",
		URL:   "https://kb/policy-21",
	}}, results)
	assert.EqualValues(t, 1, backend.calls.Load())
}

func TestServerWrapperBackendTimeoutIsContent(t *testing.T) {
	backend := &stubBackend{block: true}
	sw := newTestWrapper(t, newTestTool(t, backend, search.Options{Timeout: 50 * time.Millisecond}))
	server := httptest.NewServer(sw.Handler())
	defer server.Close()

	session, err := connectClient(t, server.URL+"/", testSecret)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search",
		Arguments: map[string]any{"query": "anything"},
	})
	require.NoError(t, err)

	require.Equal(t, []types.FormattedResult{{
		Title: "Search Error",
		URL:   "",
		Chunk: "Could not perform a search at this time: timeout",
	}}, decodeResults(t, res))
}

func TestServerWrapperEmptyResults(t *testing.T) {
	sw := newTestWrapper(t, newTestTool(t, &stubBackend{}, search.Options{}))
	server := httptest.NewServer(sw.Handler())
	defer server.Close()

	session, err := connectClient(t, server.URL+"/mcp", testSecret)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search",
		Arguments: map[string]any{"query": "nothing matches"},
	})
	require.NoError(t, err)
	require.Empty(t, decodeResults(t, res))
}

func TestServerWrapperRunAndStop(t *testing.T) {
	sw := newTestWrapper(t, newTestTool(t, &stubBackend{}, search.Options{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	require.Eventually(t, sw.IsRunning, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + sw.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, sw.IsRunning())
}

func TestNewServerWrapperRequiresGate(t *testing.T) {
	_, err := NewServerWrapper(ServerConfig{}, nil, "")
	require.Error(t, err)
}

func TestServerConfigAddress(t *testing.T) {
	cfg := NewServerConfigFromTypes(&types.Config{ServerHost: "0.0.0.0", ServerPort: 8050})
	assert.Equal(t, "0.0.0.0:8050", cfg.Address())
}

package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ca-srg/hybridgate/internal/search"
	"github.com/ca-srg/hybridgate/internal/types"
)

type fakeBackend struct {
	hits  []types.RawHit
	err   error
	plans []*types.QueryPlan
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Search(ctx context.Context, plan *types.QueryPlan) ([]types.RawHit, error) {
	f.plans = append(f.plans, plan)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func testConfig() *types.Config {
	return &types.Config{
		AuthHeader:            "X-API-KEY",
		ServerHost:            "127.0.0.1",
		ServerPort:            8050,
		ToolName:              "search",
		RerankerThreshold:     2.5,
		SemanticConfiguration: "sops-semantic-configuration",
		VectorField:           "text_vector",
		DefaultMaxResults:     5,
		SearchTimeout:         5 * time.Second,
		Backend:               types.BackendAzure,
		ServerReadTimeout:     5 * time.Second,
		ServerWriteTimeout:    5 * time.Second,
		ServerIdleTimeout:     5 * time.Second,
		ServerShutdownTimeout: 2 * time.Second,
		ServerMaxHeaderBytes:  1 << 20,
		AzureSearchEndpoint:   "https://example.search.windows.net",
		AzureSearchKey:        "azure-key",
		AzureSearchIndex:      "docs",
		AzureSearchAPIVersion: "2024-07-01",
		AzureSearchRateLimit:  10,
		AzureSearchRateBurst:  20,
	}
}

func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, c := range []*cobra.Command{queryCmd, statsCmd, serveCmd} {
		resetFlags(c)
	}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

// withQueryDeps swaps the config loader and backend factory for the test.
func withQueryDeps(t *testing.T, cfg *types.Config, backend search.Backend) {
	t.Helper()
	origLoad, origBackend := loadQueryConfig, newBackend
	loadQueryConfig = func() (*types.Config, error) { return cfg, nil }
	newBackend = func(*types.Config) (search.Backend, error) {
		if backend == nil {
			return nil, errors.New("no backend")
		}
		return backend, nil
	}
	t.Cleanup(func() {
		loadQueryConfig, newBackend = origLoad, origBackend
	})
}

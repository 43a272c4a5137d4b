package cmd

import (
	"context"
	"fmt"

	"github.com/ca-srg/hybridgate/internal/azuresearch"
	appcfg "github.com/ca-srg/hybridgate/internal/config"
	"github.com/ca-srg/hybridgate/internal/opensearch"
	"github.com/ca-srg/hybridgate/internal/search"
	"github.com/ca-srg/hybridgate/internal/types"
)

type (
	appConfigLoader     func() (*types.Config, error)
	backendFactory      func(cfg *types.Config) (search.Backend, error)
	secretFetcherLoader func(ctx context.Context, cfg *types.Config) (appcfg.SecretFetcher, error)
)

// Package-level so tests can substitute fakes.
var (
	loadServeConfig  appConfigLoader     = appcfg.Load
	loadQueryConfig  appConfigLoader     = appcfg.Load
	newBackend       backendFactory      = buildBackend
	newSecretFetcher secretFetcherLoader = appcfg.NewSecretFetcher
)

func buildBackend(cfg *types.Config) (search.Backend, error) {
	switch cfg.Backend {
	case types.BackendOpenSearch:
		osConfig, err := opensearch.NewConfigFromTypes(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenSearch config: %w", err)
		}
		client, err := opensearch.NewClient(osConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
		}
		return client, nil
	case types.BackendAzure, "":
		client, err := azuresearch.NewClient(azuresearch.NewConfigFromTypes(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure AI Search client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported search backend %q", cfg.Backend)
	}
}

// resolveSecret returns the AuthGate secret, fetching it from Secrets Manager
// only when no inline key is configured.
func resolveSecret(ctx context.Context, cfg *types.Config) (string, error) {
	var fetcher appcfg.SecretFetcher
	if cfg.AuthKey == "" && cfg.AuthSecretID != "" {
		f, err := newSecretFetcher(ctx, cfg)
		if err != nil {
			return "", err
		}
		fetcher = f
	}
	return appcfg.ResolveSharedSecret(ctx, cfg, fetcher)
}

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appcfg "github.com/ca-srg/hybridgate/internal/config"
	"github.com/ca-srg/hybridgate/internal/mcpserver"
	"github.com/ca-srg/hybridgate/internal/metrics"
	"github.com/ca-srg/hybridgate/internal/observability"
	"github.com/ca-srg/hybridgate/internal/opensearch"
	"github.com/ca-srg/hybridgate/internal/search"
	"github.com/ca-srg/hybridgate/internal/types"
)

const (
	startupPingTimeout    = 15 * time.Second
	clientStatsInterval   = 5 * time.Minute
	telemetryFlushTimeout = 5 * time.Second
)

var (
	serveHost      string
	servePort      int
	serveBackend   string
	serveReranker  bool
	serveThreshold float64
	serveToolName  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP search gateway",
	Long: `
Start the HTTP server exposing the MCP "search" tool on / and /mcp, plus an
unauthenticated liveness probe on /health. Every other request must carry
the shared secret in the header named by MCP_AUTH_HEADER (default X-API-KEY).

Configuration is loaded from environment variables and an optional .env file.

Examples:
  hybridgate serve
  hybridgate serve --port 9000
  hybridgate serve --backend opensearch --semantic-reranker --reranker-threshold 2.5
`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "0.0.0.0", "Server host address")
	serveCmd.Flags().IntVar(&servePort, "port", 8050, "Server port")
	serveCmd.Flags().StringVar(&serveBackend, "backend", types.BackendAzure, "Search backend: azure|opensearch")
	serveCmd.Flags().BoolVar(&serveReranker, "semantic-reranker", false, "Enable semantic reranking")
	serveCmd.Flags().Float64Var(&serveThreshold, "reranker-threshold", 2.5, "Minimum reranker score kept when reranking")
	serveCmd.Flags().StringVar(&serveToolName, "tool-name", "search", "Name of the MCP search tool")
}

func applyServeFlags(cmd *cobra.Command, cfg *types.Config) {
	if cmd.Flags().Changed("host") {
		cfg.ServerHost = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.ServerPort = servePort
	}
	if cmd.Flags().Changed("backend") {
		cfg.Backend = serveBackend
	}
	if cmd.Flags().Changed("semantic-reranker") {
		cfg.UseSemanticReranker = serveReranker
	}
	if cmd.Flags().Changed("reranker-threshold") {
		cfg.RerankerThreshold = serveThreshold
	}
	if cmd.Flags().Changed("tool-name") {
		cfg.ToolName = serveToolName
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyServeFlags(cmd, cfg)
	if err := appcfg.Validate(cfg, true); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := log.New(os.Stdout, "[Serve] ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secret, err := resolveSecret(ctx, cfg)
	if err != nil {
		return fmt.Errorf("refusing to start: %w", err)
	}

	shutdownTelemetry, err := observability.Init(ctx, cfg, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Printf("Telemetry shutdown error: %v", err)
		}
	}()

	if cfg.MetricsEnabled {
		if err := metrics.Init(cfg.MetricsDBPath); err != nil {
			logger.Printf("WARNING: invocation metrics disabled: %v", err)
		} else {
			defer func() { _ = metrics.Close() }()
			if err := metrics.InitOTelMetrics(); err != nil {
				logger.Printf("WARNING: invocation gauge not registered: %v", err)
			}
			logger.Printf("Invocation metrics stored at %s", cfg.MetricsDBPath)
		}
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}
	pingBackend(ctx, logger, backend)

	orchestrator, err := search.NewOrchestrator(backend, search.OptionsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create search orchestrator: %w", err)
	}

	tool, err := mcpserver.NewSearchTool(cfg.ToolName, orchestrator, cfg.DefaultMaxResults)
	if err != nil {
		return fmt.Errorf("failed to create search tool: %w", err)
	}

	gate, err := mcpserver.NewAuthGate(cfg.AuthHeader, secret, "/health")
	if err != nil {
		return fmt.Errorf("refusing to start: %w", err)
	}

	server, err := mcpserver.NewServerWrapper(mcpserver.NewServerConfigFromTypes(cfg), gate, Version)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := server.RegisterSearchTool(tool); err != nil {
		return fmt.Errorf("failed to register search tool: %w", err)
	}

	logger.Printf("Starting hybridgate %s: backend=%s tool=%s rerank=%t threshold=%.2f auth_header=%s",
		Version, backend.Name(), tool.Name(), cfg.UseSemanticReranker, cfg.RerankerThreshold, cfg.AuthHeader)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	if osClient, ok := backend.(*opensearch.Client); ok {
		g.Go(func() error {
			ticker := time.NewTicker(clientStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					osClient.LogMetrics()
					return nil
				case <-ticker.C:
					osClient.LogMetrics()
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	logger.Printf("hybridgate stopped")
	return nil
}

// pingBackend checks connectivity once at startup. Failure is logged, not
// fatal: the tool degrades per call while the backend is unreachable.
func pingBackend(ctx context.Context, logger *log.Logger, backend search.Backend) {
	pinger, ok := backend.(search.Pinger)
	if !ok {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()

	if err := pinger.Ping(pingCtx); err != nil {
		logger.Printf("WARNING: %s backend is not reachable yet: %v", backend.Name(), err)
		return
	}
	logger.Printf("%s backend reachable", backend.Name())
}

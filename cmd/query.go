package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	appcfg "github.com/ca-srg/hybridgate/internal/config"
	"github.com/ca-srg/hybridgate/internal/search"
	"github.com/ca-srg/hybridgate/internal/types"
)

var (
	queryText       string
	queryMaxResults int
	queryFormat     string
	queryBackend    string
	queryReranker   bool
	queryThreshold  float64
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run one search against the configured backend",
	Long: `
Run the same hybrid query the MCP tool runs and print the formatted results.
No MCP authentication secret is required.

Examples:
  hybridgate query -q "how do I rotate the database password"
  hybridgate query -q "deploy rollback" -n 10 --format json
  hybridgate query -q "on-call handover" --semantic-reranker --format yaml
`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "Search query (required)")
	queryCmd.Flags().IntVarP(&queryMaxResults, "max-results", "n", 0, "Maximum number of results (default SEARCH_DEFAULT_MAX_RESULTS)")
	queryCmd.Flags().StringVar(&queryFormat, "format", "text", "Output format: text|json|yaml")
	queryCmd.Flags().StringVar(&queryBackend, "backend", types.BackendAzure, "Search backend: azure|opensearch")
	queryCmd.Flags().BoolVar(&queryReranker, "semantic-reranker", false, "Enable semantic reranking")
	queryCmd.Flags().Float64Var(&queryThreshold, "reranker-threshold", 2.5, "Minimum reranker score kept when reranking")
	_ = queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(strings.TrimSpace(queryFormat))
	switch format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported format %q (want text, json or yaml)", queryFormat)
	}

	cfg, err := loadQueryConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("backend") {
		cfg.Backend = queryBackend
	}
	if cmd.Flags().Changed("semantic-reranker") {
		cfg.UseSemanticReranker = queryReranker
	}
	if cmd.Flags().Changed("reranker-threshold") {
		cfg.RerankerThreshold = queryThreshold
	}
	if err := appcfg.Validate(cfg, false); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}
	// Keep stdout clean for the formatted results.
	if ls, ok := backend.(interface{ SetLogger(*log.Logger) }); ok {
		ls.SetLogger(log.New(cmd.ErrOrStderr(), "["+backend.Name()+"] ", log.LstdFlags))
	}
	orchestrator, err := search.NewOrchestrator(backend, search.OptionsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create search orchestrator: %w", err)
	}
	orchestrator.SetLogger(log.New(cmd.ErrOrStderr(), "[Orchestrator] ", log.LstdFlags))

	maxResults := cfg.DefaultMaxResults
	if cmd.Flags().Changed("max-results") {
		maxResults = queryMaxResults
	}

	outcome := orchestrator.Search(cmd.Context(), types.SearchRequest{
		Query:      queryText,
		MaxResults: maxResults,
	})

	if err := writeResults(cmd.OutOrStdout(), format, outcome.Results()); err != nil {
		return err
	}
	if outcome.Failed() {
		return fmt.Errorf("search failed: %w", outcome.Err)
	}
	return nil
}

func writeResults(w io.Writer, format string, results []types.FormattedResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(results)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(results) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}
	for i, r := range results {
		if _, err := fmt.Fprintf(w, "%d. %s\n", i+1, r.Title); err != nil {
			return err
		}
		if r.URL != "" {
			fmt.Fprintf(w, "   %s\n", r.URL)
		}
		fmt.Fprintf(w, "   %s\n\n", strings.ReplaceAll(strings.TrimSpace(r.Chunk), "\n", "\n   "))
	}
	return nil
}

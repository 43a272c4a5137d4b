package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hybridgate",
	Short: "hybridgate - hybrid retrieval gateway for LLM agents",
	Long: `hybridgate exposes a single MCP "search" tool that runs a combined keyword
and vector query against a pre-built document index (Azure AI Search or
OpenSearch), optionally reranks candidates semantically, and returns a
bounded list of {chunk, title, url} passages.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

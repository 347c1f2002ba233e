package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "netviz",
	Short: "netviz keeps a triplet store and its network diagram in sync",
	Long: `netviz ingests subject-predicate-object facts, projects them into nodes, links
and groups, and runs a force-directed layout over the result. The graph can be
served over HTTP and WebSocket, exposed to agents over MCP, or exported as
Mermaid and SVG.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "netviz.yaml", "Configuration file (yaml, toml or json)")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
}

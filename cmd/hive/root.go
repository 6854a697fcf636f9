package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "hive runs goal-driven agent graphs",
	Long: `hive is a runtime for goal-driven agents specified as directed graphs.
It advances a graph one node at a time, mediates tool calls through MCP
tool servers, and supports pause/resume for human-in-the-loop steps.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("graph", "g", "graph.yaml", "Path to the graph document")
	rootCmd.PersistentFlags().String("store", ".hive/runs", "Run snapshot directory")
	rootCmd.PersistentFlags().String("trace", ".hive/trace", "Decision trace directory")
	rootCmd.PersistentFlags().String("tools", "tools.yaml", "Tool-server sidecar document")
	rootCmd.PersistentFlags().String("redis", "", "Redis address for shared snapshots and locks (overrides --store)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	hive "github.com/systaxiecuador/hive"
	graphviz "github.com/systaxiecuador/hive/internal/presentation/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Render the graph as a Mermaid flowchart",
	Run: func(cmd *cobra.Command, args []string) {
		graphPath, _ := cmd.Flags().GetString("graph")
		g, err := hive.Load(graphPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(graphviz.GenerateMermaid(g, nil))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

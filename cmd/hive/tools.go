package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools discovered from the configured tool servers",
	Run: func(cmd *cobra.Command, args []string) {
		rt, _, err := buildRuntime(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer rt.Broker().Close()

		tools := rt.Broker().Tools("")
		if len(tools) == 0 {
			fmt.Println("No tools registered.")
			return
		}
		for _, t := range tools {
			fmt.Printf("  %-24s [%s] %s\n", t.Name, t.Server, t.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

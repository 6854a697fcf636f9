package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	hive "github.com/systaxiecuador/hive"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the graph document for structural violations",
	Run: func(cmd *cobra.Command, args []string) {
		graphPath, _ := cmd.Flags().GetString("graph")
		if len(args) > 0 {
			graphPath = args[0]
		}

		if _, err := hive.Load(graphPath); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Graph is valid.")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

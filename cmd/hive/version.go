package main

import (
	"fmt"

	"github.com/spf13/cobra"

	hive "github.com/systaxiecuador/hive"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of hive",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hive version %s\n", hive.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

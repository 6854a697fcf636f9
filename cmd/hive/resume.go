package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id> [key=value ... | '{json}']",
	Short: "Continue a suspended run with the user's reply",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := doResume(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().Bool("json", false, "Emit the result as JSON instead of rendered text")
}

func doResume(cmd *cobra.Command, args []string) error {
	runID := args[0]
	input, err := parseInput(args[1:])
	if err != nil {
		return err
	}

	rt, _, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Broker().Close()

	res, err := rt.Resume(context.Background(), runID, input)
	if err != nil {
		return err
	}

	jsonMode, _ := cmd.Flags().GetBool("json")
	return printResult(res, jsonMode)
}

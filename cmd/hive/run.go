package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systaxiecuador/hive/internal/presentation/tui"
	hiveruntime "github.com/systaxiecuador/hive/internal/runtime"
	"github.com/systaxiecuador/hive/pkg/domain"
)

var runCmd = &cobra.Command{
	Use:   "run [key=value ... | '{json}']",
	Short: "Start a run of the graph with the given input payload",
	Run: func(cmd *cobra.Command, args []string) {
		if err := doRun(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("json", false, "Emit the result as JSON instead of rendered text")
}

func doRun(cmd *cobra.Command, args []string) error {
	input, err := parseInput(args)
	if err != nil {
		return err
	}

	rt, _, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Broker().Close()

	jsonMode, _ := cmd.Flags().GetBool("json")
	if !jsonMode {
		tui.PrintBanner()
	}

	res, err := rt.Run(context.Background(), input)
	if err != nil {
		return err
	}
	return printResult(res, jsonMode)
}

func printResult(res *hiveruntime.Result, jsonMode bool) error {
	if jsonMode {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	switch res.State {
	case domain.RunSuspended:
		render := tui.NewRenderer()
		payload := res.Snapshot.PausePayload
		if out, err := render(payload); err == nil {
			payload = out
		}
		fmt.Println(payload)
		fmt.Printf("Run %s suspended at %s. Reply with:\n  hive resume %s input=...\n",
			res.RunID, res.Snapshot.PauseNode, res.RunID)
	case domain.RunCompleted:
		fmt.Printf("Run %s completed in %d steps.\n", res.RunID, res.Steps)
		for k, v := range res.Outputs {
			fmt.Printf("  %s: %v\n", k, v)
		}
	case domain.RunFailed:
		fmt.Printf("Run %s failed (%s): %s\n", res.RunID, res.Failure.Kind, res.Failure.Msg)
		os.Exit(1)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show a run's state, or list all runs with --all",
	Run: func(cmd *cobra.Command, args []string) {
		if err := doStatus(cmd, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("all", false, "List every run in the store")
}

func doStatus(cmd *cobra.Command, args []string) error {
	rt, _, err := buildRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Broker().Close()

	ctx := context.Background()

	all, _ := cmd.Flags().GetBool("all")
	if all || len(args) == 0 {
		runs, err := rt.Runs(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}
		for _, id := range runs {
			st, err := rt.Status(ctx, id)
			if err != nil {
				fmt.Printf("  %s  <unreadable: %v>\n", id, err)
				continue
			}
			fmt.Printf("  %s  %-10s %s\n", st.RunID, st.State, st.CurrentNode)
		}
		return nil
	}

	st, err := rt.Status(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("run:     %s\n", st.RunID)
	fmt.Printf("state:   %s\n", st.State)
	if st.CurrentNode != "" {
		fmt.Printf("node:    %s\n", st.CurrentNode)
	}
	if st.LastOutput != "" {
		fmt.Printf("output:  %s\n", st.LastOutput)
	}
	return nil
}

package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	httpadapter "github.com/systaxiecuador/hive/internal/adapters/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the host API (runs, tool servers, metrics) over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		rt, logger, err := buildRuntime(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer rt.Broker().Close()

		port, _ := cmd.Flags().GetInt("port")
		addr := fmt.Sprintf(":%d", port)

		handler := httpadapter.NewHandler(rt, logger)
		logger.Info("host API listening", "addr", addr)
		if err := http.ListenAndServe(addr, handler); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8400, "Port to listen on")
}

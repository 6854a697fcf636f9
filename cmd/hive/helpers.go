package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	hive "github.com/systaxiecuador/hive"
	"github.com/systaxiecuador/hive/internal/logging"
	"github.com/systaxiecuador/hive/pkg/adapters/file"
	redisadapter "github.com/systaxiecuador/hive/pkg/adapters/redis"
	"github.com/systaxiecuador/hive/pkg/broker"
	"github.com/systaxiecuador/hive/pkg/runner"
	"github.com/systaxiecuador/hive/pkg/trace"
)

// buildRuntime assembles a Runtime from the persistent flags: graph
// document, snapshot store (file or redis), JSONL trace sink, and the
// tool servers listed in the sidecar document.
func buildRuntime(cmd *cobra.Command) (*runner.Runtime, *slog.Logger, error) {
	logger := loggerFromFlags(cmd)

	graphPath, _ := cmd.Flags().GetString("graph")
	g, err := hive.Load(graphPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load graph: %w", err)
	}

	opts := []runner.Option{runner.WithLogger(logger)}

	redisAddr, _ := cmd.Flags().GetString("redis")
	if redisAddr != "" {
		client := backend.NewClient(&backend.Options{Addr: redisAddr})
		opts = append(opts,
			runner.WithStore(redisadapter.NewFromClient(client)),
			runner.WithLocker(redisadapter.NewLocker(client, "hive:")),
		)
	} else {
		storeDir, _ := cmd.Flags().GetString("store")
		store, err := file.NewStore(storeDir)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, runner.WithStore(store))
	}

	traceDir, _ := cmd.Flags().GetString("trace")
	if traceDir != "" {
		rec, err := trace.NewJSONLRecorder(traceDir, logger)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, runner.WithRecorder(rec))
	}

	b := broker.New(broker.WithLogger(logger))
	opts = append(opts, runner.WithBroker(b))

	rt, err := runner.New(g, opts...)
	if err != nil {
		return nil, nil, err
	}

	toolsPath, _ := cmd.Flags().GetString("tools")
	servers, err := broker.LoadConfig(toolsPath)
	if err != nil {
		return nil, nil, err
	}
	for _, cfg := range servers {
		if _, err := rt.RegisterToolServer(context.Background(), cfg); err != nil {
			return nil, nil, fmt.Errorf("tool server %q: %w", cfg.Name, err)
		}
		logger.Info("tool server ready", "server", cfg.Name)
	}

	return rt, logger, nil
}

func loggerFromFlags(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return logging.New(level)
}

// parseInput accepts either one JSON object argument or key=value
// pairs.
func parseInput(args []string) (map[string]any, error) {
	input := map[string]any{}
	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "{") {
		if err := json.Unmarshal([]byte(args[0]), &input); err != nil {
			return nil, fmt.Errorf("invalid input JSON: %w", err)
		}
		return input, nil
	}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			input[key] = parsed
		} else {
			input[key] = value
		}
	}
	return input, nil
}

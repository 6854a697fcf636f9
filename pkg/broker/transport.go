package broker

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
)

// dial opens the transport for a server descriptor: a child process
// with line-framed stdio, or a streamable HTTP endpoint.
func dial(ctx context.Context, cfg ServerConfig) (Conn, error) {
	switch cfg.Transport {
	case TransportStdio:
		return dialStdio(ctx, cfg)
	case TransportHTTP:
		return dialHTTP(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func dialStdio(ctx context.Context, cfg ServerConfig) (Conn, error) {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	var tr *transport.Stdio
	if cfg.Dir != "" {
		tr = transport.NewStdioWithOptions(cfg.Command, env, cfg.Args,
			transport.WithCommandFunc(func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
				cmd := exec.CommandContext(ctx, command, args...)
				cmd.Env = append(os.Environ(), env...)
				cmd.Dir = cfg.Dir
				return cmd, nil
			}))
	} else {
		tr = transport.NewStdio(cfg.Command, env, cfg.Args...)
	}

	c := mcpclient.NewClient(tr)
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start stdio transport: %w", err)
	}
	return c, nil
}

func dialHTTP(ctx context.Context, cfg ServerConfig) (Conn, error) {
	var opts []transport.StreamableHTTPCOption
	if len(cfg.Headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
	}

	c, err := mcpclient.NewStreamableHttpClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create http transport: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start http transport: %w", err)
	}
	return c, nil
}

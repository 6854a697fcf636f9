package ports

import (
	"context"

	"github.com/systaxiecuador/hive/pkg/domain"
)

// ToolInvoker dispatches tool calls to whichever registered server
// owns the tool. The result always echoes the correlation id it was
// invoked with. A tool-level error comes back as a structured result
// the LLM can observe; only transport loss, timeouts and cancellation
// return an error.
type ToolInvoker interface {
	// Tools returns the cached catalogue, optionally filtered to the
	// named server ("" = all servers).
	Tools(server string) []domain.Tool

	// Invoke sends one invocation frame and blocks for the matching
	// reply or the per-call deadline.
	Invoke(ctx context.Context, call domain.ToolCall) (domain.ToolResult, error)
}

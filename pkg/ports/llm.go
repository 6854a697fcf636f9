package ports

import (
	"context"

	"github.com/systaxiecuador/hive/pkg/domain"
)

// CompletionRequest is one LLM call: system prompt, transcript so far,
// and the tool schemas the model may invoke.
type CompletionRequest struct {
	System    string
	Messages  []domain.Message
	Tools     []domain.Tool
	MaxTokens int
}

// Completion is the provider's reply. A reply carries plain text,
// tool calls, or both; the executors decide what each combination
// means for the node contract.
type Completion struct {
	Content      string
	ToolCalls    []domain.ToolCall
	InputTokens  int
	OutputTokens int
}

// Tokens returns the total token count of the exchange.
func (c *Completion) Tokens() int {
	return c.InputTokens + c.OutputTokens
}

// Provider is the semantic LLM interface the node executors consume.
// Transport, retries and model selection live behind it.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

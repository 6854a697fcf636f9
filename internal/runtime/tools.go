package runtime

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/memplane"
	"github.com/systaxiecuador/hive/pkg/ports"
)

// toolsExecutor drives the multi-turn LLM event loop: call the model
// with the transcript and permitted tool schemas, dispatch requested
// tool calls through the broker, buffer set_output values, and commit
// when the model produces plain text with no tool calls.
//
// For a client-facing node the plain-text turn instead suspends the
// run, carrying the text to the human, unless set_output has already
// buffered a complete, non-empty output contract; on resume the reply is appended
// as a user message and the loop continues. Suspension points occur
// strictly between LLM turns.
type toolsExecutor struct {
	provider ports.Provider
	broker   ports.ToolInvoker
	goal     *domain.Goal
	turn     timeoutFunc

	maxTurns  int
	maxTokens int

	problem func(domain.Problem)
}

// setOutputArgs is the decoded argument shape of the set_output
// pseudo-tool.
type setOutputArgs struct {
	Name  string `mapstructure:"name"`
	Value any    `mapstructure:"value"`
}

// resumeInput carries a human reply into a suspended transcript. It
// is only consumed by the node that originally suspended.
type resumeInput struct {
	nodeID     string
	transcript []domain.Message
	userReply  string
}

func (e *toolsExecutor) execute(ctx context.Context, node *domain.Node, view memplane.View) nodeOutcome {
	return e.run(ctx, node, view, nil)
}

func (e *toolsExecutor) run(ctx context.Context, node *domain.Node, view memplane.View, resume *resumeInput) nodeOutcome {
	if e.provider == nil {
		return failed(domain.NewFailure(domain.FailLLM, node.ID, "no LLM provider configured"))
	}

	system, err := renderSystem(node, e.goal, view)
	if err != nil {
		return failed(asFailure(err, node.ID))
	}

	var transcript []domain.Message
	if resume != nil && len(resume.transcript) > 0 {
		transcript = append(transcript, resume.transcript...)
		transcript = append(transcript, domain.Message{Role: "user", Content: resume.userReply})
	} else {
		transcript = append(transcript, domain.Message{Role: "user", Content: serializeView(view.Select(node.InputKeys))})
	}

	toolSchemas := e.schemas(node)
	buffered := restoreBuffered(transcript)

	turns := 0
	tokens := 0
	for {
		if e.maxTurns > 0 && turns >= e.maxTurns {
			return failed(domain.NewFailure(domain.FailLoopExhausted, node.ID,
				"turn cap reached after %d turns", turns))
		}
		if e.maxTokens > 0 && tokens >= e.maxTokens {
			return failed(domain.NewFailure(domain.FailLoopExhausted, node.ID,
				"token cap reached at %d tokens", tokens))
		}

		turnCtx, cancel := e.turn(ctx)
		comp, err := e.provider.Complete(turnCtx, ports.CompletionRequest{
			System:   system,
			Messages: transcript,
			Tools:    toolSchemas,
		})
		cancel()
		if err != nil {
			out := failed(providerFailure(turnCtx, node.ID, err))
			out.tokens = tokens
			return out
		}
		turns++
		tokens += comp.Tokens()

		transcript = append(transcript, domain.Message{
			Role:      "assistant",
			Content:   comp.Content,
			ToolCalls: comp.ToolCalls,
		})

		if len(comp.ToolCalls) > 0 {
			if fail := e.handleCalls(ctx, node, comp.ToolCalls, buffered, &transcript); fail != nil {
				out := failed(fail)
				out.tokens = tokens
				return out
			}
			continue
		}

		// Plain text, no tool calls: a client-facing node hands the
		// text to the human and suspends. Only a fully buffered
		// output contract ends the conversation.
		if node.ClientFacing && (len(buffered) == 0 || missingRequired(node, buffered)) {
			out := suspended(comp.Content, transcript)
			out.tokens = tokens
			return out
		}

		out := success(buffered)
		out.payload = comp.Content
		out.transcript = transcript
		out.tokens = tokens
		return out
	}
}

// handleCalls dispatches one response's tool calls. set_output must
// appear alone in its turn; anything else is malformed output.
func (e *toolsExecutor) handleCalls(ctx context.Context, node *domain.Node, calls []domain.ToolCall, buffered map[string]any, transcript *[]domain.Message) *domain.Failure {
	hasSetOutput := false
	for _, c := range calls {
		if c.Name == domain.SetOutputTool {
			hasSetOutput = true
		}
	}
	if hasSetOutput && len(calls) > 1 {
		return domain.NewFailure(domain.FailLLM, node.ID,
			"%s must appear in a turn with no other tool calls", domain.SetOutputTool)
	}

	for _, call := range calls {
		if call.ID == "" {
			call.ID = uuid.NewString()
		}

		if call.Name == domain.SetOutputTool {
			var args setOutputArgs
			if err := mapstructure.Decode(call.Args, &args); err != nil || args.Name == "" {
				return domain.NewFailure(domain.FailLLM, node.ID,
					"malformed %s arguments: %v", domain.SetOutputTool, call.Args)
			}
			if !contains(node.OutputKeys, args.Name) && e.problem != nil {
				e.problem(domain.Problem{
					Severity: domain.SeverityWarning,
					NodeID:   node.ID,
					Message:  fmt.Sprintf("%s names undeclared key %q", domain.SetOutputTool, args.Name),
					Remedy:   "declare the key in output_keys or fix the prompt",
				})
			}
			buffered[args.Name] = args.Value
			*transcript = append(*transcript, domain.Message{
				Role:       "tool",
				ToolResult: &domain.ToolResult{ID: call.ID, Result: "ok"},
			})
			continue
		}

		if !node.AllowsTool(call.Name) {
			// Observable tool error; the model can recover.
			*transcript = append(*transcript, domain.Message{
				Role: "tool",
				ToolResult: &domain.ToolResult{
					ID:      call.ID,
					IsError: true,
					Error:   fmt.Sprintf("tool %q is not permitted for this node", call.Name),
				},
			})
			continue
		}

		result, err := e.broker.Invoke(ctx, call)
		if err != nil {
			return asFailure(err, node.ID)
		}
		// Replies append in arrival order; correlation is by id.
		*transcript = append(*transcript, domain.Message{Role: "tool", ToolResult: &result})
	}
	return nil
}

// schemas returns the broker schemas the node may use plus the
// set_output pseudo-tool.
func (e *toolsExecutor) schemas(node *domain.Node) []domain.Tool {
	var out []domain.Tool
	if e.broker != nil {
		for _, t := range e.broker.Tools("") {
			if node.AllowsTool(t.Name) {
				out = append(out, t)
			}
		}
	}
	out = append(out, domain.Tool{
		Name:        domain.SetOutputTool,
		Description: "Buffer a value under a declared output key. Call with no other tools in the same turn.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":  map[string]any{"type": "string"},
				"value": map[string]any{},
			},
			"required": []any{"name", "value"},
		},
	})
	return out
}

// restoreBuffered replays set_output calls from a resumed transcript
// so buffered outputs survive a suspension.
func restoreBuffered(transcript []domain.Message) map[string]any {
	buffered := make(map[string]any)
	for _, m := range transcript {
		for _, call := range m.ToolCalls {
			if call.Name != domain.SetOutputTool {
				continue
			}
			var args setOutputArgs
			if err := mapstructure.Decode(call.Args, &args); err == nil && args.Name != "" {
				buffered[args.Name] = args.Value
			}
		}
	}
	return buffered
}

func missingRequired(node *domain.Node, buffered map[string]any) bool {
	for _, key := range node.OutputKeys {
		if !node.OutputRequired(key) {
			continue
		}
		if v, ok := buffered[key]; !ok || v == nil {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

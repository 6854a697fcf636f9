package runtime

import (
	"context"
	"errors"

	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/memplane"
	"github.com/systaxiecuador/hive/pkg/ports"
)

// generateExecutor performs a single LLM completion: render the system
// prompt, send the input view as the user message, parse the reply per
// the node's declared output shape.
type generateExecutor struct {
	provider ports.Provider
	goal     *domain.Goal
	turn     timeoutFunc
}

func (e *generateExecutor) execute(ctx context.Context, node *domain.Node, view memplane.View) nodeOutcome {
	if e.provider == nil {
		return failed(domain.NewFailure(domain.FailLLM, node.ID, "no LLM provider configured"))
	}

	system, err := renderSystem(node, e.goal, view)
	if err != nil {
		return failed(asFailure(err, node.ID))
	}

	turnCtx, cancel := e.turn(ctx)
	defer cancel()

	comp, err := e.provider.Complete(turnCtx, ports.CompletionRequest{
		System:   system,
		Messages: []domain.Message{{Role: "user", Content: serializeView(view.Select(node.InputKeys))}},
	})
	if err != nil {
		return failed(providerFailure(turnCtx, node.ID, err))
	}

	out := success(parseOutputs(node, comp.Content))
	out.payload = comp.Content
	out.tokens = comp.Tokens()
	return out
}

// parseOutputs maps a completion onto the node's declared output keys.
// A JSON object reply feeds keys directly; otherwise a single declared
// key receives the whole value.
func parseOutputs(node *domain.Node, content string) map[string]any {
	outputs := make(map[string]any)

	parsed, ok := parseJSONResponse(content)
	if ok {
		if obj, isMap := parsed.(map[string]any); isMap {
			for _, key := range node.OutputKeys {
				if v, present := obj[key]; present {
					outputs[key] = v
				}
			}
			if len(outputs) > 0 {
				return outputs
			}
		}
		if len(node.OutputKeys) == 1 {
			outputs[node.OutputKeys[0]] = parsed
			return outputs
		}
	}

	if len(node.OutputKeys) == 1 {
		outputs[node.OutputKeys[0]] = content
	}
	return outputs
}

// renderSystem builds the system prompt: goal context first, then the
// node's rendered template.
func renderSystem(node *domain.Node, goal *domain.Goal, view memplane.View) (string, error) {
	prompt, err := renderTemplate(node.ID, node.SystemPrompt, view)
	if err != nil {
		return "", err
	}
	if goal != nil {
		if gc := goal.PromptContext(); gc != "" {
			if prompt == "" {
				return gc, nil
			}
			return gc + "\n\n" + prompt, nil
		}
	}
	return prompt, nil
}

func providerFailure(ctx context.Context, nodeID string, err error) *domain.Failure {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewFailure(domain.FailTimeout, nodeID, "LLM turn deadline expired: %v", err)
	}
	if errors.Is(err, context.Canceled) {
		return domain.NewFailure(domain.FailCancelled, nodeID, "LLM call cancelled")
	}
	return domain.NewFailure(domain.FailLLM, nodeID, "%v", err)
}

func asFailure(err error, nodeID string) *domain.Failure {
	var f *domain.Failure
	if errors.As(err, &f) {
		return f
	}
	return domain.NewFailure(domain.FailLLM, nodeID, "%v", err)
}

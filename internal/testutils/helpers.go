// Package testutils provides scripted doubles for the LLM provider and
// the tool broker, shared by scheduler, runner and adapter tests.
package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/ports"
)

// ScriptedProvider replays a fixed sequence of completions. Each call
// to Complete pops the next entry; an exhausted script errors.
type ScriptedProvider struct {
	mu       sync.Mutex
	Script   []ports.Completion
	Requests []ports.CompletionRequest
	Err      error
}

// Complete records the request and returns the next scripted reply.
func (p *ScriptedProvider) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Script) == 0 {
		return nil, fmt.Errorf("scripted provider exhausted after %d requests", len(p.Requests))
	}
	next := p.Script[0]
	p.Script = p.Script[1:]
	return &next, nil
}

// Text builds a plain-text completion.
func Text(content string) ports.Completion {
	return ports.Completion{Content: content, InputTokens: 10, OutputTokens: 5}
}

// Calls builds a completion carrying tool calls.
func Calls(calls ...domain.ToolCall) ports.Completion {
	return ports.Completion{ToolCalls: calls, InputTokens: 10, OutputTokens: 5}
}

// SetOutput builds a completion that buffers one output value.
func SetOutput(name string, value any) ports.Completion {
	return Calls(domain.ToolCall{
		ID:   "call-" + name,
		Name: domain.SetOutputTool,
		Args: map[string]any{"name": name, "value": value},
	})
}

// FakeInvoker resolves tool calls from a fixed handler map and records
// every invocation.
type FakeInvoker struct {
	mu       sync.Mutex
	Catalog  []domain.Tool
	Handlers map[string]func(args map[string]any) (any, error)
	Calls    []domain.ToolCall
}

// Tools returns the configured catalogue.
func (f *FakeInvoker) Tools(server string) []domain.Tool {
	return f.Catalog
}

// Invoke records the call and dispatches to the handler.
func (f *FakeInvoker) Invoke(ctx context.Context, call domain.ToolCall) (domain.ToolResult, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	handler, ok := f.Handlers[call.Name]
	f.mu.Unlock()

	if !ok {
		return domain.ToolResult{ID: call.ID, IsError: true,
			Error: fmt.Sprintf("no handler for tool %q", call.Name)}, nil
	}
	result, err := handler(call.Args)
	if err != nil {
		return domain.ToolResult{ID: call.ID, IsError: true, Error: err.Error()}, nil
	}
	return domain.ToolResult{ID: call.ID, Result: result}, nil
}

// Invocations returns a copy of the recorded calls.
func (f *FakeInvoker) Invocations() []domain.ToolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ToolCall(nil), f.Calls...)
}

var (
	_ ports.Provider    = (*ScriptedProvider)(nil)
	_ ports.ToolInvoker = (*FakeInvoker)(nil)
)

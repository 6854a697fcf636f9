package runtime

import (
	"context"
	"fmt"

	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/memplane"
)

// FunctionFunc is a host-provided pure transformation bound to a
// function node by id. It receives the node's input view and returns a
// mapping covering the declared output keys.
type FunctionFunc func(ctx context.Context, in memplane.View) (map[string]any, error)

type functionExecutor struct {
	fns map[string]FunctionFunc
}

func (e *functionExecutor) execute(ctx context.Context, node *domain.Node, view memplane.View) nodeOutcome {
	fn, ok := e.fns[node.ID]
	if !ok {
		return failed(domain.NewFailure(domain.FailFunction, node.ID,
			"function node not registered with the host"))
	}

	outputs, err := invokeFunction(ctx, fn, view.Select(node.InputKeys))
	if err != nil {
		return failed(domain.NewFailure(domain.FailFunction, node.ID, "%v", err))
	}
	return success(outputs)
}

// invokeFunction shields the scheduler from panicking host callbacks.
func invokeFunction(ctx context.Context, fn FunctionFunc, in memplane.View) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("function panicked: %v", r)
		}
	}()
	return fn(ctx, in)
}

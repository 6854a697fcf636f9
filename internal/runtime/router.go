package runtime

import (
	"context"

	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/expr"
	"github.com/systaxiecuador/hive/pkg/memplane"
)

// routerExecutor evaluates the node's declarative route rules over the
// input view and stores the winning routing key as an output. The
// scheduler then branches on it via conditional edges. No LLM, no
// tools.
type routerExecutor struct{}

func (routerExecutor) execute(ctx context.Context, node *domain.Node, view memplane.View) nodeOutcome {
	key := node.RoutingKey()
	if key == "" {
		return failed(domain.NewFailure(domain.FailValidation, node.ID,
			"router declares no output key"))
	}

	env := map[string]any(view)
	for _, route := range node.Routes {
		if route.When == "" {
			// Default rule.
			return success(map[string]any{key: route.Value})
		}
		ok, err := expr.Eval(route.When, env)
		if err != nil {
			return failed(domain.NewFailure(domain.FailValidation, node.ID,
				"bad route predicate %q: %v", route.When, err))
		}
		if ok {
			return success(map[string]any{key: route.Value})
		}
	}

	return failed(domain.NewFailure(domain.FailDeadEnd, node.ID,
		"no route rule matched the input view"))
}

package runtime_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systaxiecuador/hive/internal/runtime"
	"github.com/systaxiecuador/hive/internal/testutils"
	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/dsl"
	"github.com/systaxiecuador/hive/pkg/memplane"
	"github.com/systaxiecuador/hive/pkg/ports"
	"github.com/systaxiecuador/hive/pkg/trace"
)

func countVisits(path []string) map[string]int {
	visits := make(map[string]int)
	for _, id := range path {
		visits[id]++
	}
	return visits
}

func TestLinearSuccess(t *testing.T) {
	g, err := dsl.New("linear").
		Node("a", domain.NodeTypeFunction).Inputs("x").Outputs("y").Graph().
		Node("b", domain.NodeTypeFunction).Inputs("y").Outputs("z").Graph().
		Node("c", domain.NodeTypeFunction).Inputs("z").Outputs("out").Graph().
		Connect("a", "b").
		Connect("b", "c").
		Entry("start", "a").
		Terminal("c").
		Build()
	require.NoError(t, err)

	fns := map[string]runtime.FunctionFunc{
		"a": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"y": 2}, nil
		},
		"b": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"z": 3}, nil
		},
		"c": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"out": "ok"}, nil
		},
	}

	rec := trace.NewMemoryRecorder()
	sched := runtime.NewScheduler(g, "run-linear",
		runtime.WithFunctions(fns),
		runtime.WithRecorder(rec),
	)

	res := sched.Run(context.Background(), "", map[string]any{"x": 1})

	require.Equal(t, domain.RunCompleted, res.State)
	assert.Equal(t, "ok", res.Outputs["out"])
	assert.Equal(t, []string{"a", "b", "c"}, res.Path)
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, countVisits(res.Path))

	// Events are totally ordered and monotonically sequenced.
	events := rec.Events("run-linear")
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventRunStarted, events[0].Type)
	assert.Equal(t, domain.EventRunEnded, events[len(events)-1].Type)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq)
	}
}

func TestFailureHandled(t *testing.T) {
	g, err := dsl.New("failure").
		Node("a", domain.NodeTypeFunction).Inputs("x").Outputs("y").Graph().
		Node("b", domain.NodeTypeFunction).Inputs("y").Outputs("out").Graph().
		Node("e", domain.NodeTypeFunction).Outputs("out").Graph().
		Connect("a", "b").
		OnFailure("a", "e").
		Entry("start", "a").
		Terminal("b", "e").
		Build()
	require.NoError(t, err)

	ran := map[string]int{}
	fns := map[string]runtime.FunctionFunc{
		"a": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			ran["a"]++
			return nil, fmt.Errorf("boom")
		},
		"b": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			ran["b"]++
			return map[string]any{"out": "via-b"}, nil
		},
		"e": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			ran["e"]++
			return map[string]any{"out": "via-e"}, nil
		},
	}

	sched := runtime.NewScheduler(g, "", runtime.WithFunctions(fns))
	res := sched.Run(context.Background(), "", map[string]any{"x": 1})

	require.Equal(t, domain.RunCompleted, res.State)
	assert.Equal(t, 0, ran["b"], "b must never run")
	assert.Equal(t, 1, ran["e"], "e runs exactly once")
	assert.Equal(t, "via-e", res.Outputs["out"])
}

func TestFeedbackLoopWithCap(t *testing.T) {
	g, err := dsl.New("loop").
		Node("intake", domain.NodeTypeFunction).Inputs("topic").Outputs("brief").Graph().
		Node("research", domain.NodeTypeFunction).Inputs("brief").Outputs("findings").MaxVisits(3).Graph().
		Node("review", domain.NodeTypeFunction).Inputs("findings").Outputs("verdict", "feedback").Nullable("feedback").MaxVisits(3).Graph().
		Node("report", domain.NodeTypeFunction).Inputs("findings", "verdict").Outputs("out").Graph().
		Connect("intake", "research").
		Connect("research", "review").
		Connect("review", "report").
		When("review", "research", "feedback != null", -1).
		Entry("start", "intake").
		Terminal("report").
		Build()
	require.NoError(t, err)

	reviews := 0
	fns := map[string]runtime.FunctionFunc{
		"intake": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"brief": "b"}, nil
		},
		"research": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"findings": "f"}, nil
		},
		"review": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			reviews++
			if reviews < 3 {
				// The reviewer sends it back twice.
				return map[string]any{"verdict": "revise", "feedback": fmt.Sprintf("round %d", reviews)}, nil
			}
			return map[string]any{"verdict": "approve", "feedback": nil}, nil
		},
		"report": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"out": "done"}, nil
		},
	}

	sched := runtime.NewScheduler(g, "", runtime.WithFunctions(fns))
	res := sched.Run(context.Background(), "", map[string]any{"topic": "t"})

	require.Equal(t, domain.RunCompleted, res.State, "failure: %v", res.Failure)
	visits := countVisits(res.Path)
	assert.Equal(t, 3, visits["research"])
	assert.Equal(t, 3, visits["review"])
	assert.Equal(t, 1, visits["report"])

	// The approving review cleared feedback with an explicit nil, so
	// the feedback edge stopped firing and the loop could exit.
	_, stale := res.Outputs["feedback"]
	assert.False(t, stale, "approved review leaves no stale feedback")
	assert.Equal(t, "done", res.Outputs["out"])
}

func TestVisitCapExhaustion(t *testing.T) {
	g, err := dsl.New("spin").
		Node("a", domain.NodeTypeFunction).Outputs("done").Nullable("done").MaxVisits(2).Graph().
		Node("t", domain.NodeTypeFunction).Outputs("out").Graph().
		When("a", "t", "done", 1).
		When("a", "a", "not done", -1).
		Entry("start", "a").
		Terminal("t").
		Build()
	require.NoError(t, err)

	runs := 0
	fns := map[string]runtime.FunctionFunc{
		"a": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			runs++
			return map[string]any{}, nil // never sets done
		},
		"t": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"out": "x"}, nil
		},
	}

	sched := runtime.NewScheduler(g, "", runtime.WithFunctions(fns))
	res := sched.Run(context.Background(), "", nil)

	require.Equal(t, domain.RunFailed, res.State)
	assert.Equal(t, 2, runs, "a runs exactly twice")
	require.NotNil(t, res.Failure)
	assert.Equal(t, domain.FailVisitCap, res.Failure.Kind)
}

func TestMissingInputTerminatesRun(t *testing.T) {
	g, err := dsl.New("missing").
		Node("a", domain.NodeTypeFunction).Inputs("x").Outputs("out").Graph().
		Entry("start", "a").
		Terminal("a").
		Build()
	require.NoError(t, err)

	sched := runtime.NewScheduler(g, "", runtime.WithFunctions(map[string]runtime.FunctionFunc{
		"a": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"out": 1}, nil
		},
	}))

	res := sched.Run(context.Background(), "", nil) // no payload
	require.Equal(t, domain.RunFailed, res.State)
	assert.Equal(t, domain.FailMissingInput, res.Failure.Kind)
}

func TestMissingRequiredOutputFollowsFailureEdges(t *testing.T) {
	g, err := dsl.New("contract").
		Node("a", domain.NodeTypeFunction).Outputs("y").Graph().
		Node("e", domain.NodeTypeFunction).Outputs("out").Graph().
		OnFailure("a", "e").
		Entry("start", "a").
		Terminal("e").
		Build()
	require.NoError(t, err)

	sched := runtime.NewScheduler(g, "", runtime.WithFunctions(map[string]runtime.FunctionFunc{
		"a": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{}, nil // y never produced
		},
		"e": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"out": "recovered"}, nil
		},
	}))

	res := sched.Run(context.Background(), "", nil)
	require.Equal(t, domain.RunCompleted, res.State)
	assert.Equal(t, "recovered", res.Outputs["out"])
}

func TestDeadEnd(t *testing.T) {
	g, err := dsl.New("deadend").
		Node("a", domain.NodeTypeFunction).Outputs("y").Graph().
		Node("b", domain.NodeTypeFunction).Inputs("y").Outputs("out").Graph().
		When("a", "b", "y == 'never'", 1).
		Entry("start", "a").
		Terminal("b").
		Build()
	require.NoError(t, err)

	sched := runtime.NewScheduler(g, "", runtime.WithFunctions(map[string]runtime.FunctionFunc{
		"a": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"y": "always"}, nil
		},
	}))

	res := sched.Run(context.Background(), "", nil)
	require.Equal(t, domain.RunFailed, res.State)
	assert.Equal(t, domain.FailDeadEnd, res.Failure.Kind)
}

func TestRouterRouting(t *testing.T) {
	g, err := dsl.New("route").
		Node("classify", domain.NodeTypeRouter).Inputs("ticket").Outputs("category").
		Route("ticket == 'refund'", "billing").
		Route("", "general").
		Graph().
		Node("billing", domain.NodeTypeFunction).Inputs("category").Outputs("out").Graph().
		Node("general", domain.NodeTypeFunction).Inputs("category").Outputs("out").Graph().
		When("classify", "billing", "category == 'billing'", 2).
		When("classify", "general", "category == 'general'", 1).
		Entry("start", "classify").
		Terminal("billing", "general").
		Build()
	require.NoError(t, err)

	handled := ""
	fns := map[string]runtime.FunctionFunc{
		"billing": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			handled = "billing"
			return map[string]any{"out": "billing"}, nil
		},
		"general": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			handled = "general"
			return map[string]any{"out": "general"}, nil
		},
	}

	sched := runtime.NewScheduler(g, "", runtime.WithFunctions(fns))
	res := sched.Run(context.Background(), "", map[string]any{"ticket": "refund"})

	require.Equal(t, domain.RunCompleted, res.State)
	assert.Equal(t, "billing", handled)
}

func TestCancelStopsScheduling(t *testing.T) {
	g, err := dsl.New("cancel").
		Node("a", domain.NodeTypeFunction).Outputs("n").MaxVisits(0).Graph().
		Node("t", domain.NodeTypeFunction).Inputs("n").Outputs("out").Graph().
		When("a", "t", "n > 100", 1).
		When("a", "a", "n <= 100", -1).
		Entry("start", "a").
		Terminal("t").
		Build()
	require.NoError(t, err)

	var sched *runtime.Scheduler
	n := 0
	sched = runtime.NewScheduler(g, "", runtime.WithFunctions(map[string]runtime.FunctionFunc{
		"a": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			n++
			if n == 3 {
				// Host requests cancellation mid-run; the current node
				// is allowed to return.
				sched.Cancel()
			}
			return map[string]any{"n": n}, nil
		},
	}))

	res := sched.Run(context.Background(), "", nil)
	require.Equal(t, domain.RunFailed, res.State)
	assert.Equal(t, domain.FailCancelled, res.Failure.Kind)
	assert.Equal(t, 3, n, "no new nodes scheduled after cancel")
}

func TestRunStepBound(t *testing.T) {
	g, err := dsl.New("unbounded").
		MaxSteps(5).
		Node("a", domain.NodeTypeFunction).Outputs("n").MaxVisits(0).Graph().
		Node("t", domain.NodeTypeFunction).Inputs("n").Outputs("out").Graph().
		When("a", "t", "n > 100", 1).
		When("a", "a", "n <= 100", -1).
		Entry("start", "a").
		Terminal("t").
		Build()
	require.NoError(t, err)

	n := 0
	sched := runtime.NewScheduler(g, "", runtime.WithFunctions(map[string]runtime.FunctionFunc{
		"a": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			n++
			return map[string]any{"n": n}, nil
		},
	}))

	res := sched.Run(context.Background(), "", nil)
	require.Equal(t, domain.RunFailed, res.State)
	assert.Equal(t, domain.FailLoopExhausted, res.Failure.Kind)
	assert.Equal(t, 5, n)
}

func TestUnknownEntryPoint(t *testing.T) {
	g, err := dsl.New("entry").
		Node("a", domain.NodeTypeFunction).Outputs("out").Graph().
		Entry("start", "a").
		Terminal("a").
		Build()
	require.NoError(t, err)

	sched := runtime.NewScheduler(g, "", runtime.WithFunctions(map[string]runtime.FunctionFunc{
		"a": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"out": 1}, nil
		},
	}))

	res := sched.Run(context.Background(), "nope", nil)
	require.Equal(t, domain.RunFailed, res.State)
	assert.Equal(t, domain.FailValidation, res.Failure.Kind)
}

func TestGenerateNodeParsesFencedJSON(t *testing.T) {
	g, err := dsl.New("gen").
		Node("draft", domain.NodeTypeLLMGenerate).Inputs("topic").Outputs("summary", "score").
		Prompt("Summarize {topic}.").Graph().
		Entry("start", "draft").
		Terminal("draft").
		Build()
	require.NoError(t, err)

	provider := &testutils.ScriptedProvider{Script: []ports.Completion{
		testutils.Text("Here you go:\n```json\n{\"summary\": \"tides are cool\", \"score\": 8}\n```"),
	}}

	sched := runtime.NewScheduler(g, "", runtime.WithProvider(provider))
	res := sched.Run(context.Background(), "", map[string]any{"topic": "tides"})

	require.Equal(t, domain.RunCompleted, res.State, "failure: %v", res.Failure)
	assert.Equal(t, "tides are cool", res.Outputs["summary"])
	assert.Equal(t, float64(8), res.Outputs["score"])

	// The rendered prompt substituted {topic}.
	require.NotEmpty(t, provider.Requests)
	assert.Contains(t, provider.Requests[0].System, "Summarize tides.")
}

func TestGenerateNodeMissingPromptKey(t *testing.T) {
	g, err := dsl.New("gen2").
		Node("draft", domain.NodeTypeLLMGenerate).Outputs("summary").
		Prompt("Summarize {absent_key}.").Graph().
		Entry("start", "draft").
		Terminal("draft").
		Build()
	require.NoError(t, err)

	provider := &testutils.ScriptedProvider{Script: []ports.Completion{testutils.Text("unused")}}
	sched := runtime.NewScheduler(g, "", runtime.WithProvider(provider))

	res := sched.Run(context.Background(), "", nil)
	require.Equal(t, domain.RunFailed, res.State)
	assert.Equal(t, domain.FailMissingInput, res.Failure.Kind)
	assert.Empty(t, provider.Requests, "the LLM must not be called")
}

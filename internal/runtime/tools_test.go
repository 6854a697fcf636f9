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
)

func searchInvoker() *testutils.FakeInvoker {
	return &testutils.FakeInvoker{
		Catalog: []domain.Tool{{
			Name:        "search",
			Description: "Search the corpus",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []any{"query"},
			},
			Server: "research-tools",
		}},
		Handlers: map[string]func(args map[string]any) (any, error){
			"search": func(args map[string]any) (any, error) {
				return map[string]any{"hits": 3, "query": args["query"]}, nil
			},
		},
	}
}

func toolsGraph(t *testing.T) *domain.Graph {
	t.Helper()
	g, err := dsl.New("tools").
		Node("answer", domain.NodeTypeLLMTools).Inputs("question").Outputs("answer").
		Tools("search").
		Prompt("Answer the question using the search tool.").Graph().
		Entry("start", "answer").
		Terminal("answer").
		Build()
	require.NoError(t, err)
	return g
}

func TestToolLoopInvokesBrokerOnce(t *testing.T) {
	invoker := searchInvoker()
	provider := &testutils.ScriptedProvider{Script: []ports.Completion{
		testutils.Calls(domain.ToolCall{ID: "corr-1", Name: "search", Args: map[string]any{"query": "tides"}}),
		testutils.SetOutput("answer", "tides are caused by the moon"),
		testutils.Text("All done."),
	}}

	sched := runtime.NewScheduler(toolsGraph(t), "",
		runtime.WithProvider(provider),
		runtime.WithBroker(invoker),
	)
	res := sched.Run(context.Background(), "", map[string]any{"question": "why tides?"})

	require.Equal(t, domain.RunCompleted, res.State, "failure: %v", res.Failure)
	assert.Equal(t, "tides are caused by the moon", res.Outputs["answer"])

	// Exactly one invocation frame, correlation id preserved.
	calls := invoker.Invocations()
	require.Len(t, calls, 1)
	assert.Equal(t, "corr-1", calls[0].ID)
	assert.Equal(t, "search", calls[0].Name)

	// The second LLM turn observed the tool result in the transcript.
	require.Len(t, provider.Requests, 3)
	secondTurn := provider.Requests[1].Messages
	last := secondTurn[len(secondTurn)-1]
	require.Equal(t, "tool", last.Role)
	require.NotNil(t, last.ToolResult)
	assert.Equal(t, "corr-1", last.ToolResult.ID)

	// Tool schemas offered to the model include the pseudo-tool.
	names := map[string]bool{}
	for _, tool := range provider.Requests[0].Tools {
		names[tool.Name] = true
	}
	assert.True(t, names["search"])
	assert.True(t, names[domain.SetOutputTool])
}

func TestToolErrorIsObservableNotFatal(t *testing.T) {
	invoker := searchInvoker()
	invoker.Handlers["search"] = func(args map[string]any) (any, error) {
		return nil, fmt.Errorf("index unavailable")
	}

	provider := &testutils.ScriptedProvider{Script: []ports.Completion{
		testutils.Calls(domain.ToolCall{ID: "c1", Name: "search", Args: map[string]any{"query": "x"}}),
		testutils.SetOutput("answer", "answered without search"),
		testutils.Text("done"),
	}}

	sched := runtime.NewScheduler(toolsGraph(t), "",
		runtime.WithProvider(provider),
		runtime.WithBroker(invoker),
	)
	res := sched.Run(context.Background(), "", map[string]any{"question": "q"})

	// The model saw the error and recovered; the node did not fail.
	require.Equal(t, domain.RunCompleted, res.State)
	secondTurn := provider.Requests[1].Messages
	last := secondTurn[len(secondTurn)-1]
	require.NotNil(t, last.ToolResult)
	assert.True(t, last.ToolResult.IsError)
}

func TestSetOutputAlongsideToolCallsIsMalformed(t *testing.T) {
	invoker := searchInvoker()
	provider := &testutils.ScriptedProvider{Script: []ports.Completion{
		testutils.Calls(
			domain.ToolCall{ID: "c1", Name: "search", Args: map[string]any{"query": "x"}},
			domain.ToolCall{ID: "c2", Name: domain.SetOutputTool, Args: map[string]any{"name": "answer", "value": "v"}},
		),
	}}

	sched := runtime.NewScheduler(toolsGraph(t), "",
		runtime.WithProvider(provider),
		runtime.WithBroker(invoker),
	)
	res := sched.Run(context.Background(), "", map[string]any{"question": "q"})

	require.Equal(t, domain.RunFailed, res.State)
	assert.Equal(t, domain.FailLLM, res.Failure.Kind)
	assert.Empty(t, invoker.Invocations(), "no tool call is dispatched from a malformed turn")
}

func TestDisallowedToolSurfacesAsToolError(t *testing.T) {
	invoker := searchInvoker()
	provider := &testutils.ScriptedProvider{Script: []ports.Completion{
		testutils.Calls(domain.ToolCall{ID: "c1", Name: "forbidden_tool", Args: nil}),
		testutils.SetOutput("answer", "ok"),
		testutils.Text("done"),
	}}

	sched := runtime.NewScheduler(toolsGraph(t), "",
		runtime.WithProvider(provider),
		runtime.WithBroker(invoker),
	)
	res := sched.Run(context.Background(), "", map[string]any{"question": "q"})

	require.Equal(t, domain.RunCompleted, res.State)
	assert.Empty(t, invoker.Invocations(), "the broker never sees a disallowed tool")
}

func TestLoopExhaustedOnTurnCap(t *testing.T) {
	invoker := searchInvoker()
	// The model keeps calling the tool forever.
	script := make([]ports.Completion, 0, 8)
	for i := 0; i < 8; i++ {
		script = append(script, testutils.Calls(
			domain.ToolCall{ID: fmt.Sprintf("c%d", i), Name: "search", Args: map[string]any{"query": "again"}}))
	}
	provider := &testutils.ScriptedProvider{Script: script}

	sched := runtime.NewScheduler(toolsGraph(t), "",
		runtime.WithProvider(provider),
		runtime.WithBroker(invoker),
		runtime.WithConfig(runtime.Config{MaxSteps: 10, MaxTurns: 3}),
	)
	res := sched.Run(context.Background(), "", map[string]any{"question": "q"})

	require.Equal(t, domain.RunFailed, res.State)
	assert.Equal(t, domain.FailLoopExhausted, res.Failure.Kind)
}

func TestMissingRequiredOutputOnPlainText(t *testing.T) {
	invoker := searchInvoker()
	// Plain text before any set_output: the node commits nothing.
	provider := &testutils.ScriptedProvider{Script: []ports.Completion{
		testutils.Text("I forgot to set the output."),
	}}

	sched := runtime.NewScheduler(toolsGraph(t), "",
		runtime.WithProvider(provider),
		runtime.WithBroker(invoker),
	)
	res := sched.Run(context.Background(), "", map[string]any{"question": "q"})

	require.Equal(t, domain.RunFailed, res.State)
	assert.Equal(t, domain.FailMissingOutput, res.Failure.Kind)
}

func pauseGraph(t *testing.T) *domain.Graph {
	t.Helper()
	g, err := dsl.New("hitl").
		Node("intake", domain.NodeTypeLLMTools).Inputs("topic").Outputs("clarified").Nullable("clarified").
		Prompt("Clarify the request for topic {topic}.").ClientFacing().Graph().
		Node("process", domain.NodeTypeFunction).Inputs("input").Outputs("out").Graph().
		Connect("intake", "process").
		Entry("start", "intake").
		Entry("intake_resume", "process").
		Pause("intake").
		Terminal("process").
		Build()
	require.NoError(t, err)
	return g
}

func TestPauseAndResumeForward(t *testing.T) {
	provider := &testutils.ScriptedProvider{Script: []ports.Completion{
		testutils.Text("Which ocean do you mean?"),
	}}

	fns := map[string]runtime.FunctionFunc{
		"process": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"out": "processed: " + in.String("input")}, nil
		},
	}

	sched := runtime.NewScheduler(pauseGraph(t), "run-hitl",
		runtime.WithProvider(provider),
		runtime.WithFunctions(fns),
	)
	res := sched.Run(context.Background(), "", map[string]any{"topic": "t"})

	// First invocation: intake emits a clarifying question and suspends.
	require.Equal(t, domain.RunSuspended, res.State)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, "intake", res.Snapshot.PauseNode)
	assert.Equal(t, "Which ocean do you mean?", res.Snapshot.PausePayload)
	assert.NotEmpty(t, res.Snapshot.Transcript)
	assert.Equal(t, "t", res.Snapshot.Memory["topic"])

	// Second invocation: resume with the user's reply.
	resumed := runtime.NewScheduler(pauseGraph(t), "run-hitl",
		runtime.WithProvider(provider),
		runtime.WithFunctions(fns),
	)
	final := resumed.Resume(context.Background(), res.Snapshot, map[string]any{"input": "answer"})

	require.Equal(t, domain.RunCompleted, final.State, "failure: %v", final.Failure)
	assert.Equal(t, "processed: answer", final.Outputs["out"])
}

func TestResumeContinuesTranscript(t *testing.T) {
	// The resume entry maps back to the pause node itself: the event
	// loop continues with the reply appended as a user message.
	g, err := dsl.New("chat").
		Node("chat", domain.NodeTypeLLMTools).Inputs("topic").Outputs("summary").
		Prompt("Discuss {topic} with the user.").ClientFacing().MaxVisits(0).Graph().
		Node("wrap", domain.NodeTypeFunction).Inputs("summary").Outputs("out").Graph().
		Connect("chat", "wrap").
		Entry("start", "chat").
		Entry("chat_resume", "chat").
		Pause("chat").
		Terminal("wrap").
		Build()
	require.NoError(t, err)

	provider := &testutils.ScriptedProvider{Script: []ports.Completion{
		testutils.Text("What would you like to know?"),
	}}
	fns := map[string]runtime.FunctionFunc{
		"wrap": func(ctx context.Context, in memplane.View) (map[string]any, error) {
			return map[string]any{"out": in.String("summary")}, nil
		},
	}

	sched := runtime.NewScheduler(g, "run-chat",
		runtime.WithProvider(provider), runtime.WithFunctions(fns))
	res := sched.Run(context.Background(), "", map[string]any{"topic": "tides"})
	require.Equal(t, domain.RunSuspended, res.State)

	// Resume: the model wraps up after reading the reply.
	provider2 := &testutils.ScriptedProvider{Script: []ports.Completion{
		testutils.SetOutput("summary", "covered spring tides"),
		testutils.Text("Glad to help."),
	}}
	resumed := runtime.NewScheduler(g, "run-chat",
		runtime.WithProvider(provider2), runtime.WithFunctions(fns))
	final := resumed.Resume(context.Background(), res.Snapshot, map[string]any{"input": "tell me about spring tides"})

	require.Equal(t, domain.RunCompleted, final.State, "failure: %v", final.Failure)
	assert.Equal(t, "covered spring tides", final.Outputs["out"])

	// The continued conversation carried the prior transcript plus the
	// user's reply.
	require.NotEmpty(t, provider2.Requests)
	msgs := provider2.Requests[0].Messages
	require.GreaterOrEqual(t, len(msgs), 3)
	assert.Equal(t, "user", msgs[len(msgs)-1].Role)
	assert.Equal(t, "tell me about spring tides", msgs[len(msgs)-1].Content)
}

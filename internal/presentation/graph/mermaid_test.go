package graph_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	graphviz "github.com/systaxiecuador/hive/internal/presentation/graph"
	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/dsl"
)

func TestGenerateMermaid(t *testing.T) {
	g, err := dsl.New("viz").
		Node("intake", domain.NodeTypeFunction).Inputs("topic").Outputs("brief").Graph().
		Node("research", domain.NodeTypeLLMTools).Inputs("brief").Outputs("findings").MaxVisits(3).Graph().
		Node("review", domain.NodeTypeFunction).Inputs("findings").Outputs("verdict", "feedback").Nullable("feedback").Graph().
		Connect("intake", "research").
		Connect("research", "review").
		When("review", "research", "feedback != null", -1).
		Entry("start", "intake").
		Terminal("review").
		Build()
	require.NoError(t, err)

	out := graphviz.GenerateMermaid(g, nil)

	assert.True(t, strings.HasPrefix(out, "graph TD"))
	// Entry node renders as a circle, llm_tools as a subroutine.
	assert.Contains(t, out, `intake(("intake"))`)
	assert.Contains(t, out, "research[[")
	// Visit caps are annotated.
	assert.Contains(t, out, "≤3 visits")
	// The feedback edge is dotted and labeled with its predicate.
	assert.Contains(t, out, `-. "feedback != null" .->`)
}

func TestGenerateMermaidOverlay(t *testing.T) {
	g, err := dsl.New("viz2").
		Node("a", domain.NodeTypeFunction).Outputs("x").Graph().
		Node("b", domain.NodeTypeFunction).Inputs("x").Outputs("out").Graph().
		Connect("a", "b").
		Entry("start", "a").
		Terminal("b").
		Build()
	require.NoError(t, err)

	out := graphviz.GenerateMermaid(g, &graphviz.Overlay{
		VisitedNodes: []string{"a", "a"},
		CurrentNode:  "b",
	})

	assert.Equal(t, 1, strings.Count(out, "class a visited;"), "visited nodes deduplicate")
	assert.Contains(t, out, "class b current;")
}

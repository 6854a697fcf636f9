package dsl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systaxiecuador/hive/pkg/adapters/graphdoc"
	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/dsl"
)

func TestBuilderProducesValidGraph(t *testing.T) {
	g, err := dsl.New("triage").
		Goal(domain.Goal{ID: "g1", Name: "Triage tickets"}).
		MaxSteps(20).
		Node("classify", domain.NodeTypeRouter).Inputs("ticket").Outputs("category").
		Route("ticket == 'refund'", "billing").
		Route("", "general").
		Graph().
		Node("handle", domain.NodeTypeLLMTools).Inputs("category").Outputs("reply").
		Tools("search").Typed("reply", "string").
		Prompt("Handle a {category} ticket.").Graph().
		Connect("classify", "handle").
		Entry("start", "classify").
		Terminal("handle").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "triage", g.ID)
	assert.Equal(t, 20, g.MaxSteps)
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, g.Edges, 1)

	classify, ok := g.Node("classify")
	require.True(t, ok)
	assert.Len(t, classify.Routes, 2)
	assert.Equal(t, "category", classify.RoutingKey())

	handle, ok := g.Node("handle")
	require.True(t, ok)
	assert.Equal(t, graphdoc.DefaultMaxVisits, handle.MaxVisits)
	assert.Equal(t, "string", handle.OutputTypes["reply"])
}

func TestBuilderValidationFailures(t *testing.T) {
	_, err := dsl.New("bad").
		Node("a", domain.NodeTypeFunction).Outputs("x").Graph().
		Connect("a", "ghost").
		Entry("start", "a").
		Build()
	require.Error(t, err)
	assert.Equal(t, domain.FailValidation, domain.FailureKind(err))
}

func TestBuilderNodeReuse(t *testing.T) {
	b := dsl.New("reuse")
	first := b.Node("a", domain.NodeTypeFunction)
	second := b.Node("a", domain.NodeTypeFunction)
	assert.Same(t, first, second, "same id returns the same builder")
}

func TestBuiltGraphRoundTripsThroughDocument(t *testing.T) {
	g, err := dsl.New("doc").
		Node("a", domain.NodeTypeFunction).Inputs("x").Outputs("out").Graph().
		Entry("start", "a").
		Terminal("a").
		Build()
	require.NoError(t, err)

	data, err := graphdoc.Marshal(g)
	require.NoError(t, err)
	again, err := graphdoc.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, g, again)
}

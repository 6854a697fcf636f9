package validator_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systaxiecuador/hive/internal/validator"
	"github.com/systaxiecuador/hive/pkg/domain"
)

func validGraph() *domain.Graph {
	return &domain.Graph{
		ID: "g",
		Nodes: []domain.Node{
			{ID: "intake", Type: domain.NodeTypeFunction, InputKeys: []string{"topic"}, OutputKeys: []string{"draft"}, MaxVisits: 1},
			{ID: "review", Type: domain.NodeTypeFunction, InputKeys: []string{"draft"}, OutputKeys: []string{"verdict", "feedback"}, NullableOutputs: []string{"feedback"}, MaxVisits: 3},
			{ID: "report", Type: domain.NodeTypeFunction, InputKeys: []string{"verdict"}, OutputKeys: []string{"out"}, MaxVisits: 1},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "intake", Target: "review", Condition: domain.EdgeOnSuccess, Priority: 1},
			{ID: "e2", Source: "review", Target: "report", Condition: domain.EdgeOnSuccess, Priority: 1},
			{ID: "e3", Source: "review", Target: "intake", Condition: domain.EdgeConditional, Predicate: "feedback != null", Priority: -1},
		},
		EntryPoints:   map[string]string{"start": "intake"},
		TerminalNodes: []string{"report"},
	}
}

func TestValidateAccepts(t *testing.T) {
	require.NoError(t, validator.Validate(validGraph()))
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Graph)
		want   string
	}{
		{"dangling edge target", func(g *domain.Graph) {
			g.Edges[0].Target = "ghost"
		}, "not a defined node"},
		{"unknown entry point", func(g *domain.Graph) {
			g.EntryPoints["start"] = "ghost"
		}, "undefined node"},
		{"no entry points", func(g *domain.Graph) {
			g.EntryPoints = nil
		}, "no entry points"},
		{"pause and terminal overlap", func(g *domain.Graph) {
			g.PauseNodes = []string{"report"}
		}, "both terminal and a pause node"},
		{"undefined pause node", func(g *domain.Graph) {
			g.PauseNodes = []string{"ghost"}
		}, "not defined"},
		{"conditional without predicate", func(g *domain.Graph) {
			g.Edges[2].Predicate = " "
		}, "empty predicate"},
		{"predicate on plain edge", func(g *domain.Graph) {
			g.Edges[0].Predicate = "x == 1"
		}, "not conditional"},
		{"predicate names unknown key", func(g *domain.Graph) {
			g.Edges[2].Predicate = "unknown_key != null"
		}, "unknown key"},
		{"forward edge into entry", func(g *domain.Graph) {
			g.Edges[2].Priority = 1
		}, "incoming forward edge"},
		{"equal top-priority fan-out", func(g *domain.Graph) {
			g.Edges = append(g.Edges, domain.Edge{
				ID: "e4", Source: "intake", Target: "report",
				Condition: domain.EdgeOnSuccess, Priority: 1,
			})
		}, "equal-priority fan-out"},
		{"uncovered input key", func(g *domain.Graph) {
			g.Nodes[2].InputKeys = append(g.Nodes[2].InputKeys, "never_produced")
		}, "produced by no reachable predecessor"},
		{"router without routes", func(g *domain.Graph) {
			g.Nodes[0].Type = domain.NodeTypeRouter
		}, "declares no routes"},
		{"unknown node type", func(g *domain.Graph) {
			g.Nodes[0].Type = "quantum"
		}, "unknown type"},
		{"duplicate node id", func(g *domain.Graph) {
			g.Nodes = append(g.Nodes, domain.Node{ID: "intake", Type: domain.NodeTypeFunction})
		}, "duplicate node id"},
		{"negative criterion weight", func(g *domain.Graph) {
			g.Goal.Criteria = []domain.Criterion{{ID: "c1", Description: "d", Weight: -0.5}}
		}, "negative weight"},
		{"unknown constraint kind", func(g *domain.Graph) {
			g.Goal.Constraints = []domain.Constraint{{ID: "k1", Description: "d", Kind: "firm"}}
		}, "unknown kind"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := validGraph()
			tc.mutate(g)
			err := validator.Validate(g)
			require.Error(t, err)
			assert.Equal(t, domain.FailValidation, domain.FailureKind(err))
			assert.True(t, strings.Contains(err.Error(), tc.want),
				"error %q should mention %q", err.Error(), tc.want)
		})
	}
}

func TestValidateGoalBlock(t *testing.T) {
	g := validGraph()
	g.Goal = domain.Goal{
		ID:   "g1",
		Name: "ship it",
		Criteria: []domain.Criterion{
			{ID: "c1", Description: "approved", Weight: 1.0},
			{ID: "c2", Description: "cheap"}, // zero weight is fine
		},
		Constraints: []domain.Constraint{
			{ID: "k1", Description: "no fabrication", Kind: domain.ConstraintHard},
			{ID: "k2", Description: "be brief", Kind: domain.ConstraintSoft},
		},
	}
	require.NoError(t, validator.Validate(g))
}

func TestValidateFeedbackIntoEntryAllowed(t *testing.T) {
	g := validGraph()
	// e3 loops back into the entry node with negative priority.
	require.NoError(t, validator.Validate(g))
}

package dsl

import (
	"fmt"

	"github.com/systaxiecuador/hive/internal/validator"
	"github.com/systaxiecuador/hive/pkg/adapters/graphdoc"
	"github.com/systaxiecuador/hive/pkg/domain"
)

// Builder assembles a graph description.
type Builder struct {
	graph   domain.Graph
	nodes   map[string]*NodeBuilder
	order   []string
	edgeSeq int
}

// New creates a builder for a graph with the given id.
func New(id string) *Builder {
	return &Builder{
		graph: domain.Graph{
			ID:          id,
			EntryPoints: map[string]string{},
		},
		nodes: make(map[string]*NodeBuilder),
	}
}

// Goal sets the goal block.
func (b *Builder) Goal(goal domain.Goal) *Builder {
	b.graph.Goal = goal
	return b
}

// MaxSteps bounds total node executions per run.
func (b *Builder) MaxSteps(n int) *Builder {
	b.graph.MaxSteps = n
	return b
}

// Node creates (or returns) the builder for a node.
func (b *Builder) Node(id, nodeType string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node: domain.Node{
			ID:        id,
			Type:      nodeType,
			MaxVisits: graphdoc.DefaultMaxVisits,
		},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Connect adds an on_success forward edge with priority 1.
func (b *Builder) Connect(source, target string) *Builder {
	return b.Edge(source, target, domain.EdgeOnSuccess, "", 1)
}

// OnFailure adds an on_failure forward edge with priority 1.
func (b *Builder) OnFailure(source, target string) *Builder {
	return b.Edge(source, target, domain.EdgeOnFailure, "", 1)
}

// When adds a conditional edge; negative priority marks feedback.
func (b *Builder) When(source, target, predicate string, priority int) *Builder {
	return b.Edge(source, target, domain.EdgeConditional, predicate, priority)
}

// Edge adds an edge with full control over its fields.
func (b *Builder) Edge(source, target, condition, predicate string, priority int) *Builder {
	b.edgeSeq++
	b.graph.Edges = append(b.graph.Edges, domain.Edge{
		ID:        fmt.Sprintf("e%02d", b.edgeSeq),
		Source:    source,
		Target:    target,
		Condition: condition,
		Predicate: predicate,
		Priority:  priority,
	})
	return b
}

// Entry names an entry point.
func (b *Builder) Entry(name, nodeID string) *Builder {
	b.graph.EntryPoints[name] = nodeID
	return b
}

// Pause marks nodes whose completion suspends the run.
func (b *Builder) Pause(nodeIDs ...string) *Builder {
	b.graph.PauseNodes = append(b.graph.PauseNodes, nodeIDs...)
	return b
}

// Terminal marks nodes whose completion ends the run.
func (b *Builder) Terminal(nodeIDs ...string) *Builder {
	b.graph.TerminalNodes = append(b.graph.TerminalNodes, nodeIDs...)
	return b
}

// Build compiles and validates the graph.
func (b *Builder) Build() (*domain.Graph, error) {
	g := b.graph
	g.Nodes = make([]domain.Node, 0, len(b.order))
	for _, id := range b.order {
		g.Nodes = append(g.Nodes, b.nodes[id].node)
	}

	if err := validator.Validate(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

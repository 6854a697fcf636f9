package domain

import "sort"

// EntryPointStart is the entry point used when the caller names none.
const EntryPointStart = "start"

// ResumeEntrySuffix is appended to a pause node id to name the entry
// point the scheduler re-enters at after a resume.
const ResumeEntrySuffix = "_resume"

// ResumeInputKey is the memory-plane key the host's resume input is
// injected under.
const ResumeInputKey = "input"

// Graph is the immutable description of an agent computation: nodes,
// edges, named entry points, and the pause/terminal node sets.
type Graph struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	Goal Goal `json:"goal" yaml:"goal"`

	// MaxSteps bounds total node executions per run. 0 = default.
	MaxSteps int `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`

	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`

	EntryPoints   map[string]string `json:"entry_points" yaml:"entry_points"`
	PauseNodes    []string          `json:"pause_nodes,omitempty" yaml:"pause_nodes,omitempty"`
	TerminalNodes []string          `json:"terminal_nodes,omitempty" yaml:"terminal_nodes,omitempty"`
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// EntryPoint resolves a symbolic entry point name to a node id.
func (g *Graph) EntryPoint(name string) (string, bool) {
	id, ok := g.EntryPoints[name]
	return id, ok
}

// ResumeEntry returns the entry point name for resuming past a pause node.
func ResumeEntry(pauseNodeID string) string {
	return pauseNodeID + ResumeEntrySuffix
}

// Outgoing returns the edges leaving the given node, sorted by priority
// descending, ties broken by edge id for determinism.
func (g *Graph) Outgoing(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Incoming returns the edges arriving at the given node.
func (g *Graph) Incoming(nodeID string) []Edge {
	var in []Edge
	for _, e := range g.Edges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// IsPause reports whether the node suspends the run on completion.
func (g *Graph) IsPause(nodeID string) bool {
	for _, id := range g.PauseNodes {
		if id == nodeID {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the node completes the run.
func (g *Graph) IsTerminal(nodeID string) bool {
	for _, id := range g.TerminalNodes {
		if id == nodeID {
			return true
		}
	}
	return false
}

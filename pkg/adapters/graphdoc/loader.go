// Package graphdoc loads and dumps the persisted graph description: a
// YAML document with a header, a goal block, nodes, edges, and a
// graph-config block. Load(Dump(g)) round-trips.
package graphdoc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/systaxiecuador/hive/internal/validator"
	"github.com/systaxiecuador/hive/pkg/domain"
)

// DefaultMaxVisits applies when a node omits max_visits.
const DefaultMaxVisits = 1

type document struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name,omitempty"`
	Version  string        `yaml:"version,omitempty"`
	Goal     domain.Goal   `yaml:"goal"`
	MaxSteps int           `yaml:"max_steps,omitempty"`
	Nodes    []nodeDoc     `yaml:"nodes"`
	Edges    []domain.Edge `yaml:"edges"`
	Config   configDoc     `yaml:"graph_config"`
}

// nodeDoc mirrors domain.Node with a pointer max_visits so an absent
// field can receive the default without clobbering an explicit 0
// (unlimited).
type nodeDoc struct {
	ID              string            `yaml:"id"`
	Name            string            `yaml:"name,omitempty"`
	Type            string            `yaml:"type"`
	InputKeys       []string          `yaml:"input_keys,omitempty"`
	OutputKeys      []string          `yaml:"output_keys,omitempty"`
	NullableOutputs []string          `yaml:"nullable_outputs,omitempty"`
	OutputTypes     map[string]string `yaml:"output_types,omitempty"`
	Tools           []string          `yaml:"tools,omitempty"`
	SystemPrompt    string            `yaml:"system_prompt,omitempty"`
	ClientFacing    bool              `yaml:"client_facing,omitempty"`
	MaxVisits       *int              `yaml:"max_visits,omitempty"`
	Routes          []domain.Route    `yaml:"routes,omitempty"`
}

type configDoc struct {
	EntryPoints   map[string]string `yaml:"entry_points"`
	PauseNodes    []string          `yaml:"pause_nodes,omitempty"`
	TerminalNodes []string          `yaml:"terminal_nodes,omitempty"`
}

// Loader implements ports.GraphLoader over YAML documents on disk.
type Loader struct{}

// New creates a document loader.
func New() *Loader {
	return &Loader{}
}

// Load reads, parses and validates a graph document.
func (l *Loader) Load(path string) (*domain.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph document: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a graph document from bytes.
func Parse(data []byte) (*domain.Graph, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, domain.NewFailure(domain.FailValidation, "", "failed to parse graph document: %v", err)
	}

	g := &domain.Graph{
		ID:            doc.ID,
		Name:          doc.Name,
		Version:       doc.Version,
		Goal:          doc.Goal,
		MaxSteps:      doc.MaxSteps,
		EntryPoints:   doc.Config.EntryPoints,
		PauseNodes:    doc.Config.PauseNodes,
		TerminalNodes: doc.Config.TerminalNodes,
	}
	if len(doc.Edges) > 0 {
		g.Edges = doc.Edges
	}
	if g.ID == "" {
		return nil, domain.NewFailure(domain.FailValidation, "", "graph document missing id")
	}

	g.Nodes = make([]domain.Node, 0, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		visits := DefaultMaxVisits
		if nd.MaxVisits != nil {
			visits = *nd.MaxVisits
		}
		g.Nodes = append(g.Nodes, domain.Node{
			ID:              nd.ID,
			Name:            nd.Name,
			Type:            nd.Type,
			InputKeys:       nd.InputKeys,
			OutputKeys:      nd.OutputKeys,
			NullableOutputs: nd.NullableOutputs,
			OutputTypes:     nd.OutputTypes,
			Tools:           nd.Tools,
			SystemPrompt:    nd.SystemPrompt,
			ClientFacing:    nd.ClientFacing,
			MaxVisits:       visits,
			Routes:          nd.Routes,
		})
	}

	if err := validator.Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Marshal renders a graph back into its document form.
func Marshal(g *domain.Graph) ([]byte, error) {
	doc := document{
		ID:       g.ID,
		Name:     g.Name,
		Version:  g.Version,
		Goal:     g.Goal,
		MaxSteps: g.MaxSteps,
		Edges:    g.Edges,
		Config: configDoc{
			EntryPoints:   g.EntryPoints,
			PauseNodes:    g.PauseNodes,
			TerminalNodes: g.TerminalNodes,
		},
	}
	for i := range g.Nodes {
		n := g.Nodes[i]
		visits := n.MaxVisits
		doc.Nodes = append(doc.Nodes, nodeDoc{
			ID:              n.ID,
			Name:            n.Name,
			Type:            n.Type,
			InputKeys:       n.InputKeys,
			OutputKeys:      n.OutputKeys,
			NullableOutputs: n.NullableOutputs,
			OutputTypes:     n.OutputTypes,
			Tools:           n.Tools,
			SystemPrompt:    n.SystemPrompt,
			ClientFacing:    n.ClientFacing,
			MaxVisits:       &visits,
			Routes:          n.Routes,
		})
	}
	return yaml.Marshal(&doc)
}

// Dump writes the document form of a graph to path.
func Dump(g *domain.Graph, path string) error {
	data, err := Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

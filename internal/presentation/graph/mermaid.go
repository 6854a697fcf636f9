package graph

import (
	"fmt"
	"strings"

	"github.com/systaxiecuador/hive/pkg/domain"
)

// Overlay carries dynamic run state to visualize on the graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// GenerateMermaid produces a Mermaid flowchart from a graph.
// Semantic shapes:
//   - entry nodes: ((circle))
//   - llm_tools:   [[subroutine]]
//   - router:      {diamond}
//   - pause nodes: [/parallelogram/]
//   - default:     [rectangle]
//
// Feedback edges render dotted; conditional edges carry their
// predicate as the arrow label.
func GenerateMermaid(g *domain.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	entries := make(map[string]bool, len(g.EntryPoints))
	for _, id := range g.EntryPoints {
		entries[id] = true
	}

	for i := range g.Nodes {
		node := &g.Nodes[i]
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch {
		case entries[node.ID]:
			opener, closer = "((", "))"
		case g.IsPause(node.ID):
			opener, closer = "[/", "/]"
		case node.Type == domain.NodeTypeLLMTools:
			opener, closer = "[[", "]]"
		case node.Type == domain.NodeTypeRouter:
			opener, closer = "{", "}"
		}

		label := node.ID
		if node.MaxVisits > 1 {
			label = fmt.Sprintf("%s <br/> ≤%d visits", node.ID, node.MaxVisits)
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))
	}

	for _, e := range g.Edges {
		safeFrom := sanitizeMermaidID(e.Source)
		safeTo := sanitizeMermaidID(e.Target)

		arrow := "-->"
		if e.Feedback() {
			arrow = "-.->"
		}

		caption := ""
		switch e.Condition {
		case domain.EdgeOnFailure:
			caption = "on failure"
		case domain.EdgeConditional:
			caption = strings.ReplaceAll(e.Predicate, "\"", "'")
		}
		if caption != "" {
			if e.Feedback() {
				arrow = fmt.Sprintf("-. \"%s\" .->", caption)
			} else {
				arrow = fmt.Sprintf("-- \"%s\" -->", caption)
			}
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", safeFrom, arrow, safeTo))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text for high contrast regardless of theme.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}
		if overlay.CurrentNode != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}

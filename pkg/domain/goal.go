package domain

import (
	"fmt"
	"strings"
)

// Constraint kinds.
const (
	ConstraintHard = "hard"
	ConstraintSoft = "soft"
)

// Criterion is one measurable success criterion of a goal.
type Criterion struct {
	ID          string  `json:"id" yaml:"id"`
	Description string  `json:"description" yaml:"description"`
	Metric      string  `json:"metric,omitempty" yaml:"metric,omitempty"`
	Target      string  `json:"target,omitempty" yaml:"target,omitempty"`
	Weight      float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Constraint bounds how a goal may be pursued.
type Constraint struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
	Kind        string `json:"kind" yaml:"kind"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
}

// Goal is the objective a graph pursues. It is rendered into LLM
// system prompts so every model turn knows what it is working toward.
type Goal struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Criteria    []Criterion  `json:"success_criteria,omitempty" yaml:"success_criteria,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// PromptContext renders the goal as a preamble for LLM system prompts.
func (g *Goal) PromptContext() string {
	if g.Name == "" && g.Description == "" {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", g.Name)
	if g.Description != "" {
		fmt.Fprintf(&b, "%s\n", g.Description)
	}
	if len(g.Criteria) > 0 {
		b.WriteString("Success criteria:\n")
		for _, c := range g.Criteria {
			fmt.Fprintf(&b, "- %s", c.Description)
			if c.Target != "" {
				fmt.Fprintf(&b, " (target: %s)", c.Target)
			}
			b.WriteString("\n")
		}
	}
	if len(g.Constraints) > 0 {
		b.WriteString("Constraints:\n")
		for _, c := range g.Constraints {
			fmt.Fprintf(&b, "- [%s] %s\n", c.Kind, c.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Package validator checks the structural invariants of a graph
// description. Every violation is fatal at load time.
package validator

import (
	"fmt"
	"strings"

	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/expr"
)

// Validate runs every structural check. It returns a validation
// failure aggregating all violations found, or nil.
func Validate(g *domain.Graph) error {
	var errs []string

	nodeIDs := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.ID == "" {
			errs = append(errs, "node with empty id")
			continue
		}
		if nodeIDs[n.ID] {
			errs = append(errs, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		nodeIDs[n.ID] = true

		switch n.Type {
		case domain.NodeTypeFunction, domain.NodeTypeLLMGenerate, domain.NodeTypeLLMTools, domain.NodeTypeRouter:
		default:
			errs = append(errs, fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type))
		}
		if n.Type == domain.NodeTypeRouter {
			if len(n.Routes) == 0 {
				errs = append(errs, fmt.Sprintf("router %q declares no routes", n.ID))
			}
			if n.RoutingKey() == "" {
				errs = append(errs, fmt.Sprintf("router %q declares no output key for its verdict", n.ID))
			}
		}
	}

	// Every edge endpoint resolves.
	edgeIDs := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if edgeIDs[e.ID] {
			errs = append(errs, fmt.Sprintf("duplicate edge id %q", e.ID))
		}
		edgeIDs[e.ID] = true
		if !nodeIDs[e.Source] {
			errs = append(errs, fmt.Sprintf("edge %q source %q is not a defined node", e.ID, e.Source))
		}
		if !nodeIDs[e.Target] {
			errs = append(errs, fmt.Sprintf("edge %q target %q is not a defined node", e.ID, e.Target))
		}
		switch e.Condition {
		case domain.EdgeOnSuccess, domain.EdgeOnFailure, domain.EdgeAlways:
			if e.Predicate != "" {
				errs = append(errs, fmt.Sprintf("edge %q carries a predicate but is not conditional", e.ID))
			}
		case domain.EdgeConditional:
			if strings.TrimSpace(e.Predicate) == "" {
				errs = append(errs, fmt.Sprintf("conditional edge %q carries an empty predicate", e.ID))
			}
		default:
			errs = append(errs, fmt.Sprintf("edge %q has unknown condition %q", e.ID, e.Condition))
		}
	}

	// At least one entry point; all entries resolve.
	if len(g.EntryPoints) == 0 {
		errs = append(errs, "graph declares no entry points")
	}
	for name, id := range g.EntryPoints {
		if !nodeIDs[id] {
			errs = append(errs, fmt.Sprintf("entry point %q maps to undefined node %q", name, id))
		}
	}

	// Pause and terminal sets resolve and are disjoint.
	pause := make(map[string]bool, len(g.PauseNodes))
	for _, id := range g.PauseNodes {
		if !nodeIDs[id] {
			errs = append(errs, fmt.Sprintf("pause node %q is not defined", id))
		}
		pause[id] = true
	}
	for _, id := range g.TerminalNodes {
		if !nodeIDs[id] {
			errs = append(errs, fmt.Sprintf("terminal node %q is not defined", id))
		}
		if pause[id] {
			errs = append(errs, fmt.Sprintf("node %q is both terminal and a pause node", id))
		}
	}

	// Entry nodes may receive feedback, never forward edges. Resume
	// entry points are exempt: they re-enter mid-graph by design.
	entryNodes := make(map[string]bool, len(g.EntryPoints))
	primaryEntries := make(map[string]bool, len(g.EntryPoints))
	for name, id := range g.EntryPoints {
		entryNodes[id] = true
		if !strings.HasSuffix(name, domain.ResumeEntrySuffix) {
			primaryEntries[id] = true
		}
	}
	for _, e := range g.Edges {
		if primaryEntries[e.Target] && e.Priority > 0 {
			errs = append(errs, fmt.Sprintf(
				"entry node %q has incoming forward edge %q; entries may only receive feedback", e.Target, e.ID))
		}
	}

	// Equal top-priority forward fan-out is an authoring error. An
	// on_failure edge never fires on the same outcome as a success-side
	// edge, so on_failure edges are left out of the count.
	for id := range nodeIDs {
		out := g.Outgoing(id)
		byPriority := make(map[int]int)
		for _, e := range out {
			if e.Priority > 0 && e.Condition != domain.EdgeOnFailure {
				byPriority[e.Priority]++
			}
		}
		top := 0
		for p := range byPriority {
			if p > top {
				top = p
			}
		}
		if top > 0 && byPriority[top] > 1 {
			errs = append(errs, fmt.Sprintf(
				"node %q has %d forward edges at top priority %d; equal-priority fan-out is not supported",
				id, byPriority[top], top))
		}
	}

	errs = append(errs, checkGoal(&g.Goal)...)
	errs = append(errs, checkInputCoverage(g, nodeIDs, entryNodes)...)
	errs = append(errs, checkPredicateNames(g)...)

	if len(errs) > 0 {
		return domain.NewFailure(domain.FailValidation, "",
			"%d violations:\n- %s", len(errs), strings.Join(errs, "\n- "))
	}
	return nil
}

// checkGoal verifies the goal block: constraint kinds must be hard or
// soft, criterion weights must not be negative.
func checkGoal(goal *domain.Goal) []string {
	var errs []string
	for _, c := range goal.Criteria {
		if c.Weight < 0 {
			errs = append(errs, fmt.Sprintf(
				"goal criterion %q has negative weight %v", c.ID, c.Weight))
		}
	}
	for _, c := range goal.Constraints {
		switch c.Kind {
		case domain.ConstraintHard, domain.ConstraintSoft:
		default:
			errs = append(errs, fmt.Sprintf(
				"goal constraint %q has unknown kind %q", c.ID, c.Kind))
		}
	}
	return errs
}

// checkInputCoverage verifies that each node's declared input keys are
// either produced by a reachable predecessor, declared nullable on the
// node itself, or satisfiable by the initial input payload (the input
// keys of entry nodes, plus the conventional resume key).
func checkInputCoverage(g *domain.Graph, nodeIDs, entryNodes map[string]bool) []string {
	var errs []string

	payload := map[string]bool{domain.ResumeInputKey: true}
	for id := range entryNodes {
		if n, ok := g.Node(id); ok {
			for _, k := range n.InputKeys {
				payload[k] = true
			}
		}
	}

	preds := predecessors(g)
	for i := range g.Nodes {
		n := &g.Nodes[i]
		produced := make(map[string]bool)
		for pid := range preds[n.ID] {
			p, _ := g.Node(pid)
			if p == nil {
				continue
			}
			for _, k := range p.OutputKeys {
				produced[k] = true
			}
		}
		selfNullable := make(map[string]bool, len(n.NullableOutputs))
		for _, k := range n.NullableOutputs {
			selfNullable[k] = true
		}

		for _, key := range n.InputKeys {
			if produced[key] || selfNullable[key] || payload[key] {
				continue
			}
			errs = append(errs, fmt.Sprintf(
				"node %q input %q is produced by no reachable predecessor and not payload-satisfiable", n.ID, key))
		}
	}
	return errs
}

// checkPredicateNames verifies that conditional predicates and router
// rules parse and reference only names the memory plane can hold.
func checkPredicateNames(g *domain.Graph) []string {
	var errs []string

	known := map[string]bool{domain.ResumeInputKey: true}
	for i := range g.Nodes {
		for _, k := range g.Nodes[i].OutputKeys {
			known[k] = true
		}
		for _, k := range g.Nodes[i].InputKeys {
			known[k] = true
		}
	}

	check := func(where, predicate string) {
		names, err := expr.Names(predicate)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: bad predicate: %v", where, err))
			return
		}
		for _, name := range names {
			if !known[name] {
				errs = append(errs, fmt.Sprintf("%s: predicate references unknown key %q", where, name))
			}
		}
	}

	for _, e := range g.Edges {
		if e.Condition == domain.EdgeConditional && strings.TrimSpace(e.Predicate) != "" {
			check(fmt.Sprintf("edge %q", e.ID), e.Predicate)
		}
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		for j, r := range n.Routes {
			if strings.TrimSpace(r.When) != "" {
				check(fmt.Sprintf("node %q route %d", n.ID, j), r.When)
			}
		}
	}
	return errs
}

// predecessors computes, for every node, the set of nodes that can
// reach it following edges of any kind.
func predecessors(g *domain.Graph) map[string]map[string]bool {
	preds := make(map[string]map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		preds[g.Nodes[i].ID] = make(map[string]bool)
	}

	// Iterate to a fixed point; graphs are small.
	changed := true
	for changed {
		changed = false
		for _, e := range g.Edges {
			tp, ok := preds[e.Target]
			if !ok {
				continue
			}
			if !tp[e.Source] {
				tp[e.Source] = true
				changed = true
			}
			for p := range preds[e.Source] {
				if !tp[p] {
					tp[p] = true
					changed = true
				}
			}
		}
	}
	return preds
}

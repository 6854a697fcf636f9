package dsl

import "github.com/systaxiecuador/hive/pkg/domain"

// NodeBuilder provides a fluent API for configuring one node.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

// Name sets the human-readable name.
func (n *NodeBuilder) Name(name string) *NodeBuilder {
	n.node.Name = name
	return n
}

// Inputs declares the keys read from the memory plane.
func (n *NodeBuilder) Inputs(keys ...string) *NodeBuilder {
	n.node.InputKeys = append(n.node.InputKeys, keys...)
	return n
}

// Outputs declares the keys produced into the memory plane.
func (n *NodeBuilder) Outputs(keys ...string) *NodeBuilder {
	n.node.OutputKeys = append(n.node.OutputKeys, keys...)
	return n
}

// Nullable marks outputs permitted to remain unset on success.
func (n *NodeBuilder) Nullable(keys ...string) *NodeBuilder {
	n.node.NullableOutputs = append(n.node.NullableOutputs, keys...)
	return n
}

// Typed constrains an output key to a schema type name.
func (n *NodeBuilder) Typed(key, typeName string) *NodeBuilder {
	if n.node.OutputTypes == nil {
		n.node.OutputTypes = make(map[string]string)
	}
	n.node.OutputTypes[key] = typeName
	return n
}

// Tools names the broker tools the node may call.
func (n *NodeBuilder) Tools(names ...string) *NodeBuilder {
	n.node.Tools = append(n.node.Tools, names...)
	return n
}

// Prompt sets the system prompt template.
func (n *NodeBuilder) Prompt(tmpl string) *NodeBuilder {
	n.node.SystemPrompt = tmpl
	return n
}

// ClientFacing marks the node as streaming to the human.
func (n *NodeBuilder) ClientFacing() *NodeBuilder {
	n.node.ClientFacing = true
	return n
}

// MaxVisits bounds executions per run; 0 = unlimited.
func (n *NodeBuilder) MaxVisits(count int) *NodeBuilder {
	n.node.MaxVisits = count
	return n
}

// Route adds a router rule; an empty predicate is the default rule.
func (n *NodeBuilder) Route(when, value string) *NodeBuilder {
	n.node.Routes = append(n.node.Routes, domain.Route{When: when, Value: value})
	return n
}

// Graph returns to the graph builder.
func (n *NodeBuilder) Graph() *Builder {
	return n.builder
}

// Build returns the underlying domain.Node.
func (n *NodeBuilder) Build() domain.Node {
	return n.node
}

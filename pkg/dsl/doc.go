/*
Package dsl provides a fluent builder for graph descriptions.

It is the programmatic alternative to the YAML document: embedded hosts
and tests assemble graphs in code and get the same validation the
loader applies.

	g, err := dsl.New("triage").
		Node("intake", domain.NodeTypeLLMTools).
		Inputs("ticket").Outputs("category").
		Prompt("Classify the ticket: {ticket}").
		Graph().
		Node("report", domain.NodeTypeFunction).
		Inputs("category").Outputs("out").
		Graph().
		Connect("intake", "report").
		Entry("start", "intake").
		Terminal("report").
		Build()
*/
package dsl

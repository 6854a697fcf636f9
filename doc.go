/*
Package hive is a runtime for goal-driven agents specified as directed
graphs of nodes. A graph alternates deterministic transformations with
LLM-mediated steps that may call external tools; the runtime advances
it one node at a time, isolates each node's memory contract, mediates
tool invocation through MCP tool servers, supports cooperative
pause/resume for human-in-the-loop interaction, bounds feedback loops
with visit caps, and records a structured decision trace.

# Quick Start

	g, err := hive.Load("graph.yaml")
	if err != nil {
		log.Fatal(err)
	}

	rt, err := runner.New(g,
		runner.WithProvider(myProvider),
		runner.WithStore(store),
	)
	if err != nil {
		log.Fatal(err)
	}

	res, err := rt.Run(ctx, map[string]any{"topic": "tides"})

A suspended run persists its snapshot; continue it with
rt.Resume(ctx, res.RunID, map[string]any{"input": reply}).
*/
package hive

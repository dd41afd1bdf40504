/*
Package flow is the graph model of the engine.

A Flow is an immutable arena of nodes and edges addressed by integer index.
Flows are built once with Build, registered in a Set, and shared read-only by
every session. Registering a flow also extends the Set's dependency Index, which
maps each object to the edges whose guard reads it and the nodes hooked on it.

	f, err := flow.Build("main", "Main",
		[]flow.NodeSpec{
			{ID: "start", Kind: flow.KindStart},
			{ID: "ask", Kind: flow.KindAction, Action: act},
			{ID: "done", Kind: flow.KindEnd},
		},
		[]flow.EdgeSpec{
			{From: "start", To: "ask"},
			{From: "ask", To: "done", Guard: guard},
		},
	)
*/
package flow

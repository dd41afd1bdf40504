/*
Package flux is an incremental flowchart execution engine with truth-maintenance semantics.

Flows are directed graphs of typed nodes (start, end, action, composed call,
checkpoint) joined by guarded edges. A session holds the facts of one case.
Whenever a fact changes, the engine re-evaluates the guards that read it and
brings every node's activation in line with its justifications: nodes gain
activity when an edge into them fires and lose it, undoing their actions,
when the last justification disappears.

# Concept

Each active node is justified by a set of supports (a fired incoming edge, a
permanent start support, a composed call entering the flow). Actions write
facts attributed to the node that produced them, so deactivating the node
retracts exactly what it wrote. Checkpoints freeze the conclusions of a run:
at the end of the transaction that reached them, the run's facts are
re-attributed to the checkpoint and the run restarts from there.

# Usage

	b := dsl.New("Triage").Autostart()
	b.Add("start").Start().When(cond.Greater("temperature", 38), "fever")
	b.Add("fever").Do(action.Set("diagnosis", "fever"))

	engine, err := flux.New(flux.WithFlows(b.MustBuild()))
	if err != nil {
		log.Fatal(err)
	}

	s := engine.NewSession("case-1", nil)
	if err := s.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := s.Set(ctx, "temperature", 39.5); err != nil {
		log.Fatal(err)
	}
	fmt.Println(s.IsActive("Triage", "fever")) // true

A session must not be used concurrently; pkg/session serializes access for
servers. Flow documents can be loaded from YAML with pkg/adapters/yaml.
*/
package flux

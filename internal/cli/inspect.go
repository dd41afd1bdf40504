package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/flux/internal/presentation/graph"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/flow"
)

// FlowReport summarizes the structure of one flow.
type FlowReport struct {
	Name        string
	Nodes       int
	Edges       int
	Cyclic      bool
	Unreachable []string
}

// Inspect reports, per flow, the nodes no Start node leads to and whether the flow loops.
func Inspect(set *flow.Set) []FlowReport {
	var out []FlowReport
	for _, f := range set.Flows() {
		r := FlowReport{Name: f.Name(), Nodes: f.NodeCount(), Edges: f.EdgeCount(), Cyclic: flow.Cyclic(f)}
		seen := make([]bool, f.NodeCount())
		for _, start := range f.NodesOf(flow.KindStart) {
			for _, i := range flow.Reachable(f, start.Index()) {
				seen[i] = true
			}
		}
		for i, ok := range seen {
			if !ok {
				r.Unreachable = append(r.Unreachable, f.Node(i).ID())
			}
		}
		out = append(out, r)
	}
	return out
}

// Validate loads the project and prints a structural report. Load and
// consistency errors are returned.
func Validate(w io.Writer, opts Options, logger *slog.Logger) error {
	p, err := LoadProject(opts.File, logger)
	if err != nil {
		return err
	}
	for _, r := range Inspect(p.Engine.Flows()) {
		fmt.Fprintf(w, "%s: %d nodes, %d edges", r.Name, r.Nodes, r.Edges)
		if r.Cyclic {
			fmt.Fprint(w, ", cyclic")
		}
		fmt.Fprintln(w)
		for _, id := range r.Unreachable {
			fmt.Fprintf(w, "  warning: node %s is unreachable from any start node\n", id)
		}
	}
	if p.Script != nil {
		fmt.Fprintf(w, "script %s: %d steps\n", p.Script.Name, len(p.Script.Steps))
	}
	fmt.Fprintf(w, "%d file(s) valid\n", len(p.Files))
	return nil
}

// Graph prints the Mermaid diagram of one flow, or of every flow when name is empty.
func Graph(w io.Writer, opts Options, name string, logger *slog.Logger) error {
	p, err := LoadProject(opts.File, logger)
	if err != nil {
		return err
	}
	set := p.Engine.Flows()
	if name == "" {
		_, err = io.WriteString(w, graph.MermaidSet(set, nil))
		return err
	}
	f, ok := set.Flow(name)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrFlowNotFound, name)
	}
	_, err = io.WriteString(w, graph.Mermaid(f, nil))
	return err
}

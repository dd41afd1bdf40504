package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/flux/internal/runtime"
	"github.com/aretw0/flux/pkg/flow"
)

// Overlay carries session state to paint on top of the static graph.
// Node references use the "flow/node" form.
type Overlay struct {
	Active   []string
	Pending  []string
	Snapshot []string
}

// Mermaid renders a single flow as a Mermaid flowchart.
// Shapes follow the node kind:
// - Start: ((circle))
// - End: (((double circle)))
// - Call: [[subroutine]]
// - Checkpoint: {{hexagon}}
// - Action: [rectangle]
func Mermaid(f *flow.Flow, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	writeFlow(&sb, f, "    ")
	writeOverlay(&sb, overlay)
	return sb.String()
}

// MermaidSet renders every flow of the set as a subgraph and links composed
// calls to the Start node they enter.
func MermaidSet(set *flow.Set, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for _, f := range set.Flows() {
		fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", sanitizeID("flow_"+f.Name()), f.Name())
		writeFlow(&sb, f, "        ")
		sb.WriteString("    end\n")
	}
	for _, f := range set.Flows() {
		for _, n := range f.NodesOf(flow.KindCall) {
			callee, start := n.Call()
			ref, err := set.ResolveStart(callee, start)
			if err != nil {
				continue
			}
			fmt.Fprintf(&sb, "    %s -.-> %s\n", nodeID(n), nodeID(set.Node(ref)))
		}
	}
	writeOverlay(&sb, overlay)
	return sb.String()
}

func writeFlow(sb *strings.Builder, f *flow.Flow, indent string) {
	for i := 0; i < f.NodeCount(); i++ {
		n := f.Node(i)
		opener, closer := shape(n.Kind())
		fmt.Fprintf(sb, "%s%s%s\"%s\"%s\n", indent, nodeID(n), opener, escape(label(n)), closer)
	}
	for i := 0; i < f.EdgeCount(); i++ {
		e := f.Edge(i)
		from, to := nodeID(f.Source(e)), nodeID(f.Target(e))
		guard := fmt.Sprint(e.Guard())
		if guard == "true" {
			fmt.Fprintf(sb, "%s%s --> %s\n", indent, from, to)
			continue
		}
		fmt.Fprintf(sb, "%s%s -- \"%s\" --> %s\n", indent, from, escape(guard), to)
	}
}

func writeOverlay(sb *strings.Builder, overlay *Overlay) {
	if overlay == nil {
		return
	}
	sb.WriteString("\n    %% Overlay Styles\n")
	sb.WriteString("    classDef active fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef pending fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
	sb.WriteString("    classDef snapshot fill:#c8e6c9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
	writeClass(sb, "active", overlay.Active)
	writeClass(sb, "snapshot", overlay.Snapshot)
	writeClass(sb, "pending", overlay.Pending)
}

func writeClass(sb *strings.Builder, class string, refs []string) {
	seen := make(map[string]bool)
	for _, ref := range refs {
		id := sanitizeID(ref)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		fmt.Fprintf(sb, "    class %s %s;\n", id, class)
	}
}

func shape(k flow.Kind) (string, string) {
	switch k {
	case flow.KindStart:
		return "((", "))"
	case flow.KindEnd:
		return "(((", ")))"
	case flow.KindCall:
		return "[[", "]]"
	case flow.KindCheckpoint:
		return "{{", "}}"
	}
	return "[", "]"
}

func label(n *flow.Node) string {
	text := n.ID()
	if n.Name() != n.ID() {
		text = n.Name()
	}
	switch n.Kind() {
	case flow.KindCall:
		callee, start := n.Call()
		if start == "" {
			start = flow.DefaultStart
		}
		return fmt.Sprintf("%s <br/> %s/%s", text, callee, start)
	case flow.KindAction:
		if s, ok := n.Action().(fmt.Stringer); ok {
			return fmt.Sprintf("%s <br/> %s", text, s)
		}
	}
	return text
}

func nodeID(n *flow.Node) string { return sanitizeID(n.String()) }

func escape(s string) string { return strings.ReplaceAll(s, "\"", "'") }

func sanitizeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_", "@", "_")
	return r.Replace(id)
}

// FromSession builds the overlay of a live session: nodes active in any run
// and checkpoints that took a snapshot at least once.
func FromSession(set *flow.Set, s *runtime.Session) *Overlay {
	o := &Overlay{Pending: s.PendingCheckpoints()}
	for _, r := range s.Runs() {
		o.Active = append(o.Active, r.Nodes...)
	}
	for _, f := range set.Flows() {
		for _, n := range f.NodesOf(flow.KindCheckpoint) {
			if _, ok := s.LatestSnapshot(f.Name(), n.ID()); ok {
				o.Snapshot = append(o.Snapshot, n.String())
			}
		}
	}
	return o
}

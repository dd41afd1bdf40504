package domain

import "fmt"

// ObjectID identifies an observable object of the knowledge base.
type ObjectID string

func (id ObjectID) String() string { return string(id) }

// SourceKind tells who authored a fact.
type SourceKind int

const (
	// SourceUser marks facts entered from outside the engine.
	SourceUser SourceKind = iota
	// SourceNode marks facts derived by an active Action node.
	SourceNode
	// SourceCheckpoint marks facts frozen by a snapshot.
	SourceCheckpoint
)

func (k SourceKind) String() string {
	switch k {
	case SourceUser:
		return "user"
	case SourceNode:
		return "node"
	case SourceCheckpoint:
		return "checkpoint"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(k))
	}
}

// Source is the author of a fact. It is comparable and can be used as a map key.
type Source struct {
	Kind SourceKind
	Flow string
	Node string
}

// User returns the source for externally entered facts.
func User() Source { return Source{Kind: SourceUser} }

// FromNode returns the source for facts derived by the given node.
func FromNode(flow, node string) Source {
	return Source{Kind: SourceNode, Flow: flow, Node: node}
}

// FromCheckpoint returns the source for facts frozen by a snapshot taken at the given node.
func FromCheckpoint(flow, node string) Source {
	return Source{Kind: SourceCheckpoint, Flow: flow, Node: node}
}

// Snapshot reports whether the fact was frozen by a checkpoint.
func (s Source) Snapshot() bool { return s.Kind == SourceCheckpoint }

func (s Source) String() string {
	if s.Kind == SourceUser {
		return "user"
	}
	return s.Kind.String() + ":" + s.Flow + "/" + s.Node
}

// Fact is the value one source holds for an object.
type Fact struct {
	Source Source
	Value  any
}

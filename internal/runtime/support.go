package runtime

import (
	"fmt"

	"github.com/aretw0/flux/pkg/flow"
)

// Support is one justification for a node being active.
// Supports are compared by Key.
type Support interface {
	Key() string
	String() string
}

// EdgeSupport is added by a fired edge. Its equality is by edge only.
type EdgeSupport struct {
	Edge    flow.EdgeRef
	Trigger string
}

func (s EdgeSupport) Key() string { return fmt.Sprintf("edge:%s#%d", s.Edge.Flow, s.Edge.Edge) }
func (s EdgeSupport) String() string {
	if s.Trigger == "" {
		return s.Key()
	}
	return s.Key() + " (" + s.Trigger + ")"
}

// ValidSupport is a permanent support: explicit starts and snapshot seeds.
type ValidSupport struct {
	Reason string
}

func (s ValidSupport) Key() string    { return "valid:" + s.Reason }
func (s ValidSupport) String() string { return s.Key() }

// CallSupport is held by a called Start node on behalf of its composed call.
type CallSupport struct {
	Caller flow.NodeRef
}

func (s CallSupport) Key() string    { return fmt.Sprintf("call:%s#%d", s.Caller.Flow, s.Caller.Node) }
func (s CallSupport) String() string { return s.Key() }

// NodeData is the support set of one node in one run.
type NodeData struct {
	supports []Support
}

// Supported reports whether any support is held.
func (d *NodeData) Supported() bool { return d != nil && len(d.supports) > 0 }

// Supports returns a copy of the held supports in insertion order.
func (d *NodeData) Supports() []Support {
	if d == nil {
		return nil
	}
	return append([]Support(nil), d.supports...)
}

// Has reports whether a support with the given key is held.
func (d *NodeData) Has(key string) bool {
	return d.find(key) >= 0
}

func (d *NodeData) find(key string) int {
	if d == nil {
		return -1
	}
	for i, s := range d.supports {
		if s.Key() == key {
			return i
		}
	}
	return -1
}

// Add inserts a support. It returns false if an equal one is already held.
func (d *NodeData) Add(s Support) bool {
	if d.find(s.Key()) >= 0 {
		return false
	}
	d.supports = append(d.supports, s)
	return true
}

// Remove drops the support with the given key and returns it with its position.
func (d *NodeData) Remove(key string) (Support, int, bool) {
	i := d.find(key)
	if i < 0 {
		return nil, -1, false
	}
	s := d.supports[i]
	d.supports = append(d.supports[:i], d.supports[i+1:]...)
	return s, i, true
}

func (d *NodeData) insert(i int, s Support) {
	d.supports = append(d.supports, nil)
	copy(d.supports[i+1:], d.supports[i:])
	d.supports[i] = s
}

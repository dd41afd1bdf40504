package file

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/domain"
)

type record struct {
	Source domain.SourceKind `json:"kind"`
	Flow   string            `json:"flow,omitempty"`
	Node   string            `json:"node,omitempty"`
	Value  any               `json:"value"`
	Seq    uint64            `json:"seq"`
}

func (r record) source() domain.Source {
	return domain.Source{Kind: r.Source, Flow: r.Flow, Node: r.Node}
}

type document struct {
	Session string                       `json:"session"`
	Seq     uint64                       `json:"seq"`
	Facts   map[domain.ObjectID][]record `json:"facts"`
}

// Blackboard implements ports.Blackboard on a JSON file. Every write is
// persisted before it returns, so a later process resumes with the same facts.
// Values come back from disk as JSON types: numbers are float64.
// Safe for concurrent use within one process.
type Blackboard struct {
	store   *Store
	session string

	mu    sync.RWMutex
	facts map[domain.ObjectID][]record
	seq   uint64
}

func merge(list []record) (any, bool) {
	var best, frozen *record
	for i := range list {
		r := &list[i]
		if r.source().Snapshot() {
			if frozen == nil || r.Seq > frozen.Seq {
				frozen = r
			}
			continue
		}
		if best == nil || r.Seq > best.Seq {
			best = r
		}
	}
	if best == nil {
		best = frozen
	}
	if best == nil {
		return nil, false
	}
	return best.Value, true
}

// Session returns the id the board was opened for.
func (b *Blackboard) Session() string { return b.session }

// Value returns the merged value of an object.
func (b *Blackboard) Value(ctx context.Context, id domain.ObjectID) (any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := merge(b.facts[id])
	if !ok {
		return nil, domain.ErrNoValue
	}
	return v, nil
}

// Fact returns the value held by one source.
func (b *Blackboard) Fact(ctx context.Context, id domain.ObjectID, src domain.Source) (any, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, r := range b.facts[id] {
		if r.source() == src {
			return r.Value, true, nil
		}
	}
	return nil, false, nil
}

// Set stores a fact and saves the board.
func (b *Blackboard) Set(ctx context.Context, id domain.ObjectID, value any, src domain.Source) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	before, had := merge(b.facts[id])
	b.seq++
	list := b.facts[id]
	found := false
	for i := range list {
		if list[i].source() == src {
			list[i].Value = value
			list[i].Seq = b.seq
			found = true
			break
		}
	}
	if !found {
		list = append(list, record{Source: src.Kind, Flow: src.Flow, Node: src.Node, Value: value, Seq: b.seq})
	}
	b.facts[id] = list

	if err := b.flush(); err != nil {
		return false, err
	}
	after, _ := merge(list)
	return !had || !cond.Same(before, after), nil
}

// Retract removes the fact of a source and saves the board.
func (b *Blackboard) Retract(ctx context.Context, id domain.ObjectID, src domain.Source) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.facts[id]
	before, had := merge(list)
	removed := false
	for i := range list {
		if list[i].source() == src {
			list = append(list[:i:i], list[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		return false, nil
	}
	if len(list) == 0 {
		delete(b.facts, id)
	} else {
		b.facts[id] = list
	}
	if err := b.flush(); err != nil {
		return false, err
	}

	after, has := merge(list)
	if had != has {
		return true, nil
	}
	return had && !cond.Same(before, after), nil
}

// Facts returns the facts of an object, least recent first.
func (b *Blackboard) Facts(ctx context.Context, id domain.ObjectID) ([]domain.Fact, error) {
	b.mu.RLock()
	list := append([]record(nil), b.facts[id]...)
	b.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	out := make([]domain.Fact, len(list))
	for i, r := range list {
		out[i] = domain.Fact{Source: r.source(), Value: r.Value}
	}
	return out, nil
}

// Restore replaces the facts of an object and saves the board.
func (b *Blackboard) Restore(ctx context.Context, id domain.ObjectID, facts []domain.Fact) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(facts) == 0 {
		delete(b.facts, id)
	} else {
		list := make([]record, len(facts))
		for i, f := range facts {
			b.seq++
			list[i] = record{Source: f.Source.Kind, Flow: f.Source.Flow, Node: f.Source.Node, Value: f.Value, Seq: b.seq}
		}
		b.facts[id] = list
	}
	return b.flush()
}

// Objects lists objects with at least one fact, sorted.
func (b *Blackboard) Objects(ctx context.Context) ([]domain.ObjectID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]domain.ObjectID, 0, len(b.facts))
	for id := range b.facts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Delete drops every fact and removes the session file.
func (b *Blackboard) Delete(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.facts = make(map[domain.ObjectID][]record)
	return b.store.Delete(ctx, b.session)
}

func (b *Blackboard) flush() error {
	return b.store.save(b.session, document{Session: b.session, Seq: b.seq, Facts: b.facts})
}

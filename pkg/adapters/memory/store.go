package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/domain"
)

type fact struct {
	src   domain.Source
	value any
	seq   uint64
}

// Blackboard implements ports.Blackboard in memory.
// The merged value of an object is the most recent user or node fact; facts
// frozen by a checkpoint only count when no other fact exists.
// Safe for concurrent use.
type Blackboard struct {
	mu    sync.RWMutex
	facts map[domain.ObjectID][]fact
	seq   uint64
}

// NewBlackboard creates an empty in-memory blackboard.
func NewBlackboard() *Blackboard {
	return &Blackboard{
		facts: make(map[domain.ObjectID][]fact),
	}
}

func merge(facts []fact) (any, bool) {
	var best, frozen *fact
	for i := range facts {
		f := &facts[i]
		if f.src.Snapshot() {
			if frozen == nil || f.seq > frozen.seq {
				frozen = f
			}
			continue
		}
		if best == nil || f.seq > best.seq {
			best = f
		}
	}
	if best == nil {
		best = frozen
	}
	if best == nil {
		return nil, false
	}
	return best.value, true
}

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
	for _, f := range b.facts[id] {
		if f.src == src {
			return f.value, true, nil
		}
	}
	return nil, false, nil
}

// Set stores a fact, making it the most recent one of the object.
func (b *Blackboard) Set(ctx context.Context, id domain.ObjectID, value any, src domain.Source) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	before, had := merge(b.facts[id])
	b.seq++
	list := b.facts[id]
	found := false
	for i := range list {
		if list[i].src == src {
			list[i].value = value
			list[i].seq = b.seq
			found = true
			break
		}
	}
	if !found {
		list = append(list, fact{src: src, value: value, seq: b.seq})
	}
	b.facts[id] = list

	after, _ := merge(list)
	return !had || !cond.Same(before, after), nil
}

// Retract removes the fact of a source.
func (b *Blackboard) Retract(ctx context.Context, id domain.ObjectID, src domain.Source) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.facts[id]
	before, had := merge(list)
	for i := range list {
		if list[i].src == src {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.facts, id)
	} else {
		b.facts[id] = list
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
	list := append([]fact(nil), b.facts[id]...)
	b.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]domain.Fact, len(list))
	for i, f := range list {
		out[i] = domain.Fact{Source: f.src, Value: f.value}
	}
	return out, nil
}

// Restore replaces the facts of an object.
func (b *Blackboard) Restore(ctx context.Context, id domain.ObjectID, facts []domain.Fact) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(facts) == 0 {
		delete(b.facts, id)
		return nil
	}
	list := make([]fact, len(facts))
	for i, f := range facts {
		b.seq++
		list[i] = fact{src: f.Source, value: f.Value, seq: b.seq}
	}
	b.facts[id] = list
	return nil
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

// Snapshot returns the merged value of every object. Useful for tests and introspection.
func (b *Blackboard) Snapshot() map[domain.ObjectID]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[domain.ObjectID]any, len(b.facts))
	for id, list := range b.facts {
		if v, ok := merge(list); ok {
			out[id] = v
		}
	}
	return out
}

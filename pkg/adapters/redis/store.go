package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "flux:"

// Blackboard implements ports.Blackboard on Redis, one hash per object.
//
// Facts are keyed by source within the hash and carry a sequence number so
// the merged value follows the same priority as the in-memory board. The
// board does not serialize writers itself: callers coordinate through a
// ports.DistributedLocker, as the session manager does.
type Blackboard struct {
	client  *backend.Client
	prefix  string
	session string
	ttl     time.Duration
}

// Option configures a Blackboard.
type Option func(*Blackboard)

// WithTTL sets the expiration of the session's keys. Each write refreshes it.
func WithTTL(ttl time.Duration) Option {
	return func(b *Blackboard) {
		b.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(b *Blackboard) {
		b.prefix = prefix
	}
}

// NewBlackboard creates the fact store of one session.
func NewBlackboard(client *backend.Client, session string, opts ...Option) *Blackboard {
	b := &Blackboard{
		client:  client,
		prefix:  DefaultPrefix,
		session: session,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type record struct {
	Kind  domain.SourceKind `json:"kind"`
	Flow  string            `json:"flow,omitempty"`
	Node  string            `json:"node,omitempty"`
	Value any               `json:"value"`
	Seq   int64             `json:"seq"`
}

func (r record) source() domain.Source {
	return domain.Source{Kind: r.Kind, Flow: r.Flow, Node: r.Node}
}

func (b *Blackboard) base() string                      { return b.prefix + "session:" + b.session + ":" }
func (b *Blackboard) factKey(id domain.ObjectID) string { return b.base() + "fact:" + string(id) }
func (b *Blackboard) objectsKey() string                { return b.base() + "objects" }
func (b *Blackboard) seqKey() string                    { return b.base() + "seq" }
func (b *Blackboard) indexKey() string                  { return b.prefix + "index" }

func (b *Blackboard) load(ctx context.Context, id domain.ObjectID) (map[string]record, error) {
	raw, err := b.client.HGetAll(ctx, b.factKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from redis: %w", id, err)
	}
	out := make(map[string]record, len(raw))
	for src, data := range raw {
		var r record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("failed to decode fact %s of %s: %w", src, id, err)
		}
		out[src] = r
	}
	return out, nil
}

func merge(facts map[string]record) (any, bool) {
	var best, frozen *record
	for _, r := range facts {
		r := r // per-iteration copy: the module targets go 1.21 loop semantics
		if r.Kind == domain.SourceCheckpoint {
			if frozen == nil || r.Seq > frozen.Seq {
				frozen = &r
			}
			continue
		}
		if best == nil || r.Seq > best.Seq {
			best = &r
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

// Value returns the merged value of an object.
func (b *Blackboard) Value(ctx context.Context, id domain.ObjectID) (any, error) {
	facts, err := b.load(ctx, id)
	if err != nil {
		return nil, err
	}
	v, ok := merge(facts)
	if !ok {
		return nil, domain.ErrNoValue
	}
	return v, nil
}

// Fact returns the value held by one source.
func (b *Blackboard) Fact(ctx context.Context, id domain.ObjectID, src domain.Source) (any, bool, error) {
	data, err := b.client.HGet(ctx, b.factKey(id), src.String()).Result()
	if err == backend.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s from redis: %w", id, err)
	}
	var r record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, false, fmt.Errorf("failed to decode fact %s of %s: %w", src, id, err)
	}
	return r.Value, true, nil
}

// Set stores a fact, making it the most recent one of the object.
func (b *Blackboard) Set(ctx context.Context, id domain.ObjectID, value any, src domain.Source) (bool, error) {
	facts, err := b.load(ctx, id)
	if err != nil {
		return false, err
	}
	before, had := merge(facts)

	seq, err := b.client.Incr(ctx, b.seqKey()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	r := record{Kind: src.Kind, Flow: src.Flow, Node: src.Node, Value: value, Seq: seq}
	data, err := json.Marshal(r)
	if err != nil {
		return false, fmt.Errorf("failed to marshal fact %s: %w", id, err)
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.factKey(id), src.String(), data)
	pipe.SAdd(ctx, b.objectsKey(), string(id))
	b.touch(ctx, pipe, b.factKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to save to redis: %w", err)
	}

	// Compare against the decoded form so numbers match what readers see.
	var stored record
	_ = json.Unmarshal(data, &stored)
	facts[src.String()] = stored
	after, _ := merge(facts)
	return !had || !cond.Same(before, after), nil
}

// Retract removes the fact of a source.
func (b *Blackboard) Retract(ctx context.Context, id domain.ObjectID, src domain.Source) (bool, error) {
	facts, err := b.load(ctx, id)
	if err != nil {
		return false, err
	}
	if _, ok := facts[src.String()]; !ok {
		return false, nil
	}
	before, had := merge(facts)
	delete(facts, src.String())

	pipe := b.client.TxPipeline()
	pipe.HDel(ctx, b.factKey(id), src.String())
	if len(facts) == 0 {
		pipe.SRem(ctx, b.objectsKey(), string(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to retract from redis: %w", err)
	}

	after, has := merge(facts)
	if had != has {
		return true, nil
	}
	return had && !cond.Same(before, after), nil
}

// Facts returns the facts of an object, least recent first.
func (b *Blackboard) Facts(ctx context.Context, id domain.ObjectID) ([]domain.Fact, error) {
	facts, err := b.load(ctx, id)
	if err != nil {
		return nil, err
	}
	list := make([]record, 0, len(facts))
	for _, r := range facts {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	out := make([]domain.Fact, len(list))
	for i, r := range list {
		out[i] = domain.Fact{Source: r.source(), Value: r.Value}
	}
	return out, nil
}

// Restore replaces the facts of an object in one transaction.
func (b *Blackboard) Restore(ctx context.Context, id domain.ObjectID, facts []domain.Fact) error {
	var last int64
	if len(facts) > 0 {
		var err error
		last, err = b.client.IncrBy(ctx, b.seqKey(), int64(len(facts))).Result()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
	}

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.factKey(id))
	if len(facts) == 0 {
		pipe.SRem(ctx, b.objectsKey(), string(id))
	} else {
		first := last - int64(len(facts)) + 1
		for i, f := range facts {
			r := record{Kind: f.Source.Kind, Flow: f.Source.Flow, Node: f.Source.Node, Value: f.Value, Seq: first + int64(i)}
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to marshal fact %s: %w", id, err)
			}
			pipe.HSet(ctx, b.factKey(id), f.Source.String(), data)
		}
		pipe.SAdd(ctx, b.objectsKey(), string(id))
		b.touch(ctx, pipe, b.factKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to restore %s in redis: %w", id, err)
	}
	return nil
}

// Objects lists objects with at least one fact, sorted.
func (b *Blackboard) Objects(ctx context.Context) ([]domain.ObjectID, error) {
	members, err := b.client.SMembers(ctx, b.objectsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	sort.Strings(members)
	ids := make([]domain.ObjectID, len(members))
	for i, m := range members {
		ids[i] = domain.ObjectID(m)
	}
	return ids, nil
}

// touch refreshes the expiration of the session keys and its index entry.
func (b *Blackboard) touch(ctx context.Context, pipe backend.Pipeliner, keys ...string) {
	score := float64(time.Now().Add(b.ttl).Unix())
	if b.ttl > 0 {
		for _, k := range append(keys, b.objectsKey(), b.seqKey()) {
			pipe.Expire(ctx, k, b.ttl)
		}
	} else {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, b.indexKey(), backend.Z{Score: score, Member: b.session})
}

// Delete removes every fact of the session.
func (b *Blackboard) Delete(ctx context.Context) error {
	ids, err := b.Objects(ctx)
	if err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, b.factKey(id))
	}
	pipe.Del(ctx, b.objectsKey(), b.seqKey())
	pipe.ZRem(ctx, b.indexKey(), b.session)
	_, err = pipe.Exec(ctx)
	return err
}

// Sessions lists the sessions holding facts under prefix, pruning expired ones.
func Sessions(ctx context.Context, client *backend.Client, prefix string) ([]string, error) {
	index := prefix + "index"
	now := float64(time.Now().Unix())
	if err := client.ZRemRangeByScore(ctx, index, "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}
	sessions, err := client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Package cond provides the reference guard vocabulary.
//
// Guards read values through a domain.View. A missing or unknown value makes
// comparisons fail with the View's error, which the engine treats as false.
package cond

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/flow"
)

type trueCond struct{}

// True is an always-true guard. It is never indexed.
func True() domain.Condition { return trueCond{} }

func (trueCond) Eval(domain.View) (bool, error) { return true, nil }
func (trueCond) Objects() []domain.ObjectID     { return nil }
func (trueCond) String() string                 { return "true" }

type compare struct {
	obj   domain.ObjectID
	op    string
	value any
}

// Equal holds when the object's value equals v. Numbers compare by value.
func Equal(obj domain.ObjectID, v any) domain.Condition { return compare{obj: obj, op: "=", value: v} }

// Less holds when the object's numeric value is lower than v.
func Less(obj domain.ObjectID, v float64) domain.Condition {
	return compare{obj: obj, op: "<", value: v}
}

// Greater holds when the object's numeric value is higher than v.
func Greater(obj domain.ObjectID, v float64) domain.Condition {
	return compare{obj: obj, op: ">", value: v}
}

func (c compare) Eval(v domain.View) (bool, error) {
	got, err := v.Value(c.obj)
	if err != nil {
		return false, err
	}
	if c.op == "=" {
		return Same(got, c.value), nil
	}
	a, ok := Number(got)
	if !ok {
		return false, fmt.Errorf("%s: %v is not a number", c.obj, got)
	}
	b, _ := Number(c.value)
	if c.op == "<" {
		return a < b, nil
	}
	return a > b, nil
}

func (c compare) Objects() []domain.ObjectID { return []domain.ObjectID{c.obj} }
func (c compare) String() string             { return fmt.Sprintf("%s %s %v", c.obj, c.op, c.value) }

type known struct{ obj domain.ObjectID }

// Known holds when the object has a value. It never fails.
func Known(obj domain.ObjectID) domain.Condition { return known{obj} }

func (k known) Eval(v domain.View) (bool, error) {
	_, err := v.Value(k.obj)
	if errors.Is(err, domain.ErrNoValue) || errors.Is(err, domain.ErrUnknownValue) {
		return false, nil
	}
	return err == nil, err
}

func (k known) Objects() []domain.ObjectID { return []domain.ObjectID{k.obj} }
func (k known) String() string             { return fmt.Sprintf("known(%s)", k.obj) }

type not struct{ c domain.Condition }

// Not negates a guard. An evaluation error is passed through.
func Not(c domain.Condition) domain.Condition { return not{c} }

func (n not) Eval(v domain.View) (bool, error) {
	ok, err := n.c.Eval(v)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (n not) Objects() []domain.ObjectID { return n.c.Objects() }
func (n not) String() string             { return fmt.Sprintf("not(%v)", n.c) }

type junction struct {
	all   bool
	terms []domain.Condition
}

// And holds when every term holds. The first failing term's error is returned.
func And(terms ...domain.Condition) domain.Condition { return junction{all: true, terms: terms} }

// Or holds when any term holds; errors only surface when no term holds.
func Or(terms ...domain.Condition) domain.Condition { return junction{all: false, terms: terms} }

func (j junction) Eval(v domain.View) (bool, error) {
	var firstErr error
	for _, t := range j.terms {
		ok, err := t.Eval(v)
		if err != nil {
			if j.all {
				return false, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok != j.all {
			return ok, nil
		}
	}
	if !j.all && firstErr != nil {
		return false, firstErr
	}
	return j.all, nil
}

func (j junction) Objects() []domain.ObjectID {
	var out []domain.ObjectID
	seen := make(map[domain.ObjectID]bool)
	for _, t := range j.terms {
		for _, id := range t.Objects() {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func (j junction) String() string {
	parts := make([]string, len(j.terms))
	for i, t := range j.terms {
		parts[i] = fmt.Sprint(t)
	}
	sep := " or "
	if j.all {
		sep = " and "
	}
	return "(" + strings.Join(parts, sep) + ")"
}

type nodeActive struct{ flow, node string }

// NodeActive holds while the given Start or End node is active in the session.
// Composed call exits are usually guarded with NodeActive on the callee's End node.
func NodeActive(flowName, node string) domain.Condition { return nodeActive{flowName, node} }

func (n nodeActive) Eval(v domain.View) (bool, error) { return v.NodeActive(n.flow, n.node), nil }
func (n nodeActive) Objects() []domain.ObjectID {
	return []domain.ObjectID{flow.NodeObject(n.flow, n.node)}
}
func (n nodeActive) String() string { return fmt.Sprintf("active(%s/%s)", n.flow, n.node) }

// Number converts the numeric kinds to float64.
func Number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// Same compares two values, treating numbers of different kinds as equal by value.
func Same(a, b any) bool {
	x, okA := Number(a)
	y, okB := Number(b)
	if okA && okB {
		return x == y
	}
	return reflect.DeepEqual(a, b)
}

// Package registry names the formulas that flow documents can reference in
// derive actions.
package registry

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/aretw0/flux/pkg/action"
	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/domain"
)

// Function computes a value from the current values of a derive action's inputs.
// Inputs without a value are passed as nil.
type Function func(args []any) (any, error)

// Registry manages the available formulas.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Function
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]Function),
	}
}

// Default returns a registry holding the numeric built-ins sum, min, max and count.
func Default() *Registry {
	r := NewRegistry()
	r.Register("sum", Sum)
	r.Register("min", Min)
	r.Register("max", Max)
	r.Register("count", Count)
	return r
}

// Register adds a formula to the registry.
// If a formula with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Names lists the registered formulas, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Formula binds a registered function to its inputs.
// Returns an error if the function is not found.
func (r *Registry) Formula(name string, inputs []domain.ObjectID) (action.Formula, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("formula not found: %s", name)
	}

	return func(v domain.View) (any, error) {
		args := make([]any, len(inputs))
		for i, id := range inputs {
			val, err := v.Value(id)
			switch {
			case err == nil:
				args[i] = val
			case errors.Is(err, domain.ErrNoValue), errors.Is(err, domain.ErrUnknownValue):
			default:
				return nil, err
			}
		}
		return fn(args)
	}, nil
}

func numbers(args []any) ([]float64, error) {
	out := make([]float64, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		n, ok := cond.Number(a)
		if !ok {
			return nil, fmt.Errorf("not a number: %v", a)
		}
		out = append(out, n)
	}
	return out, nil
}

// Sum adds the known inputs. It is 0 when none is known.
func Sum(args []any) (any, error) {
	ns, err := numbers(args)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, n := range ns {
		total += n
	}
	return total, nil
}

// Min is the smallest known input, nil when none is known.
func Min(args []any) (any, error) { return fold(args, math.Min) }

// Max is the largest known input, nil when none is known.
func Max(args []any) (any, error) { return fold(args, math.Max) }

func fold(args []any, f func(a, b float64) float64) (any, error) {
	ns, err := numbers(args)
	if err != nil || len(ns) == 0 {
		return nil, err
	}
	acc := ns[0]
	for _, n := range ns[1:] {
		acc = f(acc, n)
	}
	return acc, nil
}

// Count is the number of known inputs.
func Count(args []any) (any, error) {
	n := 0
	for _, a := range args {
		if a != nil {
			n++
		}
	}
	return n, nil
}

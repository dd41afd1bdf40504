// Package action provides the reference Action vocabulary.
package action

import (
	"context"
	"fmt"

	"github.com/aretw0/flux/pkg/domain"
)

type set struct {
	obj   domain.ObjectID
	value any
}

// Set derives a fixed value for an object. Undo retracts it.
func Set(obj domain.ObjectID, value any) domain.Action { return set{obj: obj, value: value} }

func (a set) Do(ctx context.Context, fx domain.Effects, src domain.Source) error {
	return fx.Set(ctx, a.obj, a.value, src)
}

func (a set) Undo(ctx context.Context, fx domain.Effects, src domain.Source) error {
	return fx.Retract(ctx, a.obj, src)
}

func (a set) Objects() []domain.ObjectID { return []domain.ObjectID{a.obj} }
func (a set) String() string             { return fmt.Sprintf("%s := %v", a.obj, a.value) }

type indicate struct{ set }

// Indicate marks an object as indicated (true). It may fire again while its
// node is active, so a question can be asked repeatedly.
func Indicate(obj domain.ObjectID) domain.Action { return indicate{set{obj: obj, value: true}} }

func (indicate) Repeated() bool   { return true }
func (a indicate) String() string { return fmt.Sprintf("indicate %s", a.obj) }

// Formula computes a derived value from the current session values.
type Formula func(v domain.View) (any, error)

type derive struct {
	target domain.ObjectID
	inputs []domain.ObjectID
	fn     Formula
}

// Derive sets target to the formula's result. A nil result derives nothing.
// The node is refreshed while active whenever one of the inputs changes.
func Derive(target domain.ObjectID, fn Formula, inputs ...domain.ObjectID) domain.Action {
	return derive{target: target, inputs: inputs, fn: fn}
}

func (a derive) Do(ctx context.Context, fx domain.Effects, src domain.Source) error {
	v, err := a.fn(fx)
	if err != nil {
		return fmt.Errorf("derive %s: %w", a.target, err)
	}
	if v == nil {
		return nil
	}
	return fx.Set(ctx, a.target, v, src)
}

func (a derive) Undo(ctx context.Context, fx domain.Effects, src domain.Source) error {
	return fx.Retract(ctx, a.target, src)
}

func (a derive) Objects() []domain.ObjectID       { return []domain.ObjectID{a.target} }
func (a derive) HookedObjects() []domain.ObjectID { return a.inputs }
func (a derive) String() string                   { return fmt.Sprintf("%s := f(%v)", a.target, a.inputs) }

// Func adapts plain functions to an Action. A nil undo is a no-op.
type Func struct {
	DoFunc   func(ctx context.Context, fx domain.Effects, src domain.Source) error
	UndoFunc func(ctx context.Context, fx domain.Effects, src domain.Source) error
	Derived  []domain.ObjectID
}

func (f Func) Do(ctx context.Context, fx domain.Effects, src domain.Source) error {
	if f.DoFunc == nil {
		return nil
	}
	return f.DoFunc(ctx, fx, src)
}

func (f Func) Undo(ctx context.Context, fx domain.Effects, src domain.Source) error {
	if f.UndoFunc == nil {
		return nil
	}
	return f.UndoFunc(ctx, fx, src)
}

func (f Func) Objects() []domain.ObjectID { return f.Derived }

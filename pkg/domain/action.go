package domain

import "context"

// Effects is the write surface handed to actions.
// Every write is attributed to a Source so it can be undone or frozen later.
type Effects interface {
	View
	Set(ctx context.Context, id ObjectID, value any, src Source) error
	Retract(ctx context.Context, id ObjectID, src Source) error
}

// Action is the side effect of an Action node.
//
// Do runs on activation and Undo on deactivation. Undo must revert exactly
// what Do wrote under the same source.
type Action interface {
	Do(ctx context.Context, fx Effects, src Source) error
	Undo(ctx context.Context, fx Effects, src Source) error
	// Objects lists the objects the action derives.
	Objects() []ObjectID
}

// Hooked is implemented by actions whose result depends on other objects.
// The owning node is re-run (undo then do) while active whenever one of them changes.
type Hooked interface {
	HookedObjects() []ObjectID
}

// Repeatable is implemented by actions that may fire again while their node is active.
type Repeatable interface {
	Repeated() bool
}

package ports

import (
	"context"

	"github.com/aretw0/flux/pkg/domain"
)

// Blackboard is the fact store of a session.
//
// Every fact is attributed to a domain.Source. Several sources may hold a fact
// for the same object; the merged value is what conditions observe.
type Blackboard interface {
	// Value returns the merged value of an object.
	// Returns domain.ErrNoValue if no source holds a fact for it.
	Value(ctx context.Context, id domain.ObjectID) (any, error)

	// Fact returns the value a single source holds for an object.
	Fact(ctx context.Context, id domain.ObjectID, src domain.Source) (any, bool, error)

	// Set stores the value of a source and reports whether the merged value changed.
	Set(ctx context.Context, id domain.ObjectID, value any, src domain.Source) (bool, error)

	// Retract removes the fact of a source and reports whether the merged value changed.
	// Retracting a missing fact is not an error.
	Retract(ctx context.Context, id domain.ObjectID, src domain.Source) (bool, error)

	// Objects lists every object holding at least one fact.
	Objects(ctx context.Context) ([]domain.ObjectID, error)

	// Facts returns every fact held for an object, least recent first.
	Facts(ctx context.Context, id domain.ObjectID) ([]domain.Fact, error)

	// Restore replaces every fact of an object with facts, keeping their order
	// as recency: the last one becomes the most recent. An empty list clears
	// the object. Used to roll back a failed transaction.
	Restore(ctx context.Context, id domain.ObjectID, facts []domain.Fact) error
}

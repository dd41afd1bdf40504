package domain

// View is the read-only session state conditions and actions observe.
type View interface {
	// Value returns the current merged value of an object.
	// It returns ErrNoValue when nothing is known about the object.
	Value(id ObjectID) (any, error)
	// NodeActive reports whether the node is active in any run of the session.
	NodeActive(flow, node string) bool
}

// Condition is an edge guard.
//
// Eval must be pure: no side effects on the session. An error means the
// guard could not be evaluated; the engine treats it as "not satisfied".
type Condition interface {
	Eval(v View) (bool, error)
	// Objects lists every object the guard reads. An empty list marks an
	// always-true guard, which is never indexed.
	Objects() []ObjectID
}

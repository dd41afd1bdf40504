package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoValue is returned by a View when an object has no value yet.
	ErrNoValue = errors.New("no value")
	// ErrUnknownValue is returned when an object's value is explicitly unknown.
	ErrUnknownValue = errors.New("unknown value")
	// ErrInvariant is matched by every *InvariantError.
	ErrInvariant = errors.New("engine invariant violated")
	// ErrSessionClosed is returned by operations on a cancelled session.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrFlowNotFound is returned when a flow name is not registered.
	ErrFlowNotFound = errors.New("flow not found")
	// ErrNodeNotFound is returned when a node cannot be found in its flow.
	ErrNodeNotFound = errors.New("node not found")
	// ErrDuplicateFlow is returned when a flow name is registered twice.
	ErrDuplicateFlow = errors.New("duplicate flow")
)

// ValidationError describes a malformed flow element found at build time.
type ValidationError struct {
	Flow    string
	Element string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("flow %q: %s", e.Flow, e.Reason)
	}
	return fmt.Sprintf("flow %q: %s: %s", e.Flow, e.Element, e.Reason)
}

// AggregateError collects every problem found while validating.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d validation error(s): %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap allows errors.Is/As to inspect every collected error.
func (e *AggregateError) Unwrap() []error { return e.Errors }

// ActionError wraps a failure raised by an Action node.
type ActionError struct {
	Flow string
	Node string
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action at %s/%s failed: %v", e.Flow, e.Node, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// InvariantError reports an engine bookkeeping violation.
// It aborts the transaction in progress.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariant }

// ConfigError reports a composed call whose target cannot be resolved.
type ConfigError struct {
	Flow   string
	Start  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cannot resolve call to %s/%s: %s", e.Flow, e.Start, e.Reason)
}

// DepthError is returned when propagation nests deeper than the configured limit.
type DepthError struct {
	Limit int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("propagation depth limit %d exceeded", e.Limit)
}

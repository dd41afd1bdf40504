package flow

import (
	"fmt"
	"strings"
)

// Kind is the closed set of node variants.
type Kind int

const (
	KindStart Kind = iota + 1
	KindEnd
	KindAction
	KindCall
	KindCheckpoint
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	case KindAction:
		return "action"
	case KindCall:
		return "call"
	case KindCheckpoint:
		return "checkpoint"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the declared variants.
func (k Kind) Valid() bool {
	return k >= KindStart && k <= KindCheckpoint
}

// ParseKind maps a textual kind (as found in flow documents) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return KindStart, nil
	case "end", "exit":
		return KindEnd, nil
	case "action":
		return KindAction, nil
	case "call", "composed_call", "composedcall", "subflow":
		return KindCall, nil
	case "checkpoint", "snapshot":
		return KindCheckpoint, nil
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

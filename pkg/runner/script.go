package runner

import (
	"fmt"

	"github.com/aretw0/flux/pkg/domain"
)

// StepKind names the operation of a script step.
type StepKind string

const (
	StepInit    StepKind = "init"
	StepStart   StepKind = "start"
	StepSet     StepKind = "set"
	StepRetract StepKind = "retract"
	StepExpect  StepKind = "expect"
)

// Script is an ordered list of steps run against one session.
type Script struct {
	Name  string
	Steps []Step
}

// Step is one operation. Only the fields relevant to Kind are used.
type Step struct {
	Kind   StepKind
	Flow   string
	Node   string
	Object domain.ObjectID
	Value  any
	Expect *Expectation
}

// Expectation checks the session state after the preceding steps.
// Nodes are written "flow/node".
type Expectation struct {
	Active   []string
	Inactive []string
	Values   map[domain.ObjectID]any
	Missing  []domain.ObjectID
}

func (s Step) String() string {
	switch s.Kind {
	case StepInit:
		return "init"
	case StepStart:
		return fmt.Sprintf("start %s/%s", s.Flow, s.Node)
	case StepSet:
		return fmt.Sprintf("set %s = %v", s.Object, s.Value)
	case StepRetract:
		return fmt.Sprintf("retract %s", s.Object)
	case StepExpect:
		return "expect"
	default:
		return string(s.Kind)
	}
}

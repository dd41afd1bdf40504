package yaml

import (
	"fmt"
	"sort"

	"github.com/aretw0/flux/pkg/action"
	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/registry"
	"github.com/aretw0/flux/pkg/runner"
	"github.com/mitchellh/mapstructure"
)

// single returns the only key of an operator map.
func single(m map[string]any, what string) (string, any, error) {
	if len(m) != 1 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", nil, fmt.Errorf("%s must have exactly one operator, got %v", what, keys)
	}
	var key string
	for k := range m {
		key = k
	}
	return key, m[key], nil
}

func decodeGuard(raw any) (domain.Condition, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		if v {
			return cond.True(), nil
		}
		return cond.Not(cond.True()), nil
	case map[string]any:
		return decodeOperator(v)
	default:
		return nil, fmt.Errorf("invalid guard %v (%T)", raw, raw)
	}
}

func decodeOperator(m map[string]any) (domain.Condition, error) {
	op, arg, err := single(m, "guard")
	if err != nil {
		return nil, err
	}
	switch op {
	case "equal", "less", "greater":
		var c comparisonSpec
		if err := mapstructure.Decode(arg, &c); err != nil {
			return nil, fmt.Errorf("failed to decode %s guard: %w", op, err)
		}
		if c.Object == "" {
			return nil, fmt.Errorf("%s guard missing object", op)
		}
		if op == "equal" {
			return cond.Equal(domain.ObjectID(c.Object), c.Value), nil
		}
		n, ok := cond.Number(c.Value)
		if !ok {
			return nil, fmt.Errorf("%s guard on %s needs a numeric value, got %v", op, c.Object, c.Value)
		}
		if op == "less" {
			return cond.Less(domain.ObjectID(c.Object), n), nil
		}
		return cond.Greater(domain.ObjectID(c.Object), n), nil
	case "known":
		obj, ok := arg.(string)
		if !ok || obj == "" {
			return nil, fmt.Errorf("known guard needs an object name, got %v", arg)
		}
		return cond.Known(domain.ObjectID(obj)), nil
	case "not":
		inner, err := decodeGuard(arg)
		if err != nil {
			return nil, err
		}
		if inner == nil {
			return nil, fmt.Errorf("not guard needs an operand")
		}
		return cond.Not(inner), nil
	case "and", "or":
		list, ok := arg.([]any)
		if !ok || len(list) == 0 {
			return nil, fmt.Errorf("%s guard needs a list of guards", op)
		}
		terms := make([]domain.Condition, 0, len(list))
		for _, item := range list {
			c, err := decodeGuard(item)
			if err != nil {
				return nil, err
			}
			if c == nil {
				return nil, fmt.Errorf("%s guard has an empty term", op)
			}
			terms = append(terms, c)
		}
		if op == "and" {
			return cond.And(terms...), nil
		}
		return cond.Or(terms...), nil
	case "active":
		var r refSpec
		if err := mapstructure.Decode(arg, &r); err != nil {
			return nil, fmt.Errorf("failed to decode active guard: %w", err)
		}
		if r.Flow == "" || r.Node == "" {
			return nil, fmt.Errorf("active guard needs flow and node")
		}
		return cond.NodeActive(r.Flow, r.Node), nil
	default:
		return nil, fmt.Errorf("unknown guard operator %q", op)
	}
}

func decodeAction(m map[string]any, formulas *registry.Registry) (domain.Action, error) {
	op, arg, err := single(m, "action")
	if err != nil {
		return nil, err
	}
	switch op {
	case "set":
		var s setSpec
		if err := mapstructure.Decode(arg, &s); err != nil {
			return nil, fmt.Errorf("failed to decode set action: %w", err)
		}
		if s.Object == "" {
			return nil, fmt.Errorf("set action missing object")
		}
		return action.Set(domain.ObjectID(s.Object), s.Value), nil
	case "indicate":
		obj, ok := arg.(string)
		if !ok || obj == "" {
			return nil, fmt.Errorf("indicate action needs an object name, got %v", arg)
		}
		return action.Indicate(domain.ObjectID(obj)), nil
	case "derive":
		var d deriveSpec
		if err := mapstructure.Decode(arg, &d); err != nil {
			return nil, fmt.Errorf("failed to decode derive action: %w", err)
		}
		if d.Object == "" || d.Formula == "" {
			return nil, fmt.Errorf("derive action needs object and formula")
		}
		inputs := objects(d.Inputs)
		f, err := formulas.Formula(d.Formula, inputs)
		if err != nil {
			return nil, err
		}
		return action.Derive(domain.ObjectID(d.Object), f, inputs...), nil
	default:
		return nil, fmt.Errorf("unknown action %q", op)
	}
}

func decodeStep(m map[string]any) (runner.Step, error) {
	op, arg, err := single(m, "step")
	if err != nil {
		return runner.Step{}, err
	}
	step := runner.Step{Kind: runner.StepKind(op)}
	switch step.Kind {
	case runner.StepInit:
	case runner.StepStart:
		var r refSpec
		if err := mapstructure.Decode(arg, &r); err != nil {
			return step, fmt.Errorf("failed to decode start step: %w", err)
		}
		if r.Flow == "" {
			return step, fmt.Errorf("start step missing flow")
		}
		step.Flow, step.Node = r.Flow, r.Node
	case runner.StepSet:
		var s setSpec
		if err := mapstructure.Decode(arg, &s); err != nil {
			return step, fmt.Errorf("failed to decode set step: %w", err)
		}
		if s.Object == "" {
			return step, fmt.Errorf("set step missing object")
		}
		step.Object, step.Value = domain.ObjectID(s.Object), s.Value
	case runner.StepRetract:
		obj, ok := arg.(string)
		if !ok || obj == "" {
			return step, fmt.Errorf("retract step needs an object name, got %v", arg)
		}
		step.Object = domain.ObjectID(obj)
	case runner.StepExpect:
		var e expectSpec
		if err := mapstructure.Decode(arg, &e); err != nil {
			return step, fmt.Errorf("failed to decode expect step: %w", err)
		}
		exp := &runner.Expectation{Active: e.Active, Inactive: e.Inactive, Missing: objects(e.Missing)}
		if len(e.Values) > 0 {
			exp.Values = make(map[domain.ObjectID]any, len(e.Values))
			for k, v := range e.Values {
				exp.Values[domain.ObjectID(k)] = v
			}
		}
		step.Expect = exp
	default:
		return step, fmt.Errorf("unknown step %q", op)
	}
	return step, nil
}

func objects(names []string) []domain.ObjectID {
	if len(names) == 0 {
		return nil
	}
	out := make([]domain.ObjectID, len(names))
	for i, n := range names {
		out[i] = domain.ObjectID(n)
	}
	return out
}

package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/flux/internal/logging"
	"github.com/aretw0/flux/internal/runtime"
	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/domain"
)

// Result is the outcome of one step.
type Result struct {
	Index    int           `json:"index"`
	Step     string        `json:"step"`
	Duration time.Duration `json:"duration_ns"`
	Failures []string      `json:"failures,omitempty"`
	Error    string        `json:"error,omitempty"`
	Active   []string      `json:"active,omitempty"`
}

// Summary is the outcome of a whole script.
type Summary struct {
	Script string `json:"script"`
	Steps  int    `json:"steps"`
	Failed int    `json:"failed"`
}

// Reporter presents step results.
type Reporter interface {
	Step(ctx context.Context, r Result) error
	Done(ctx context.Context, s Summary) error
}

// Runner executes scripts.
type Runner struct {
	reporter Reporter
	logger   *slog.Logger
	failFast bool
}

// Option configures the Runner.
type Option func(*Runner)

// WithReporter sets where results go. The default discards them.
func WithReporter(r Reporter) Option {
	return func(rn *Runner) {
		if r != nil {
			rn.reporter = r
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rn *Runner) {
		if logger != nil {
			rn.logger = logger
		}
	}
}

// WithFailFast stops the script at the first failed expectation.
func WithFailFast(on bool) Option {
	return func(rn *Runner) { rn.failFast = on }
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		reporter: nopReporter{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every step of script against s. Failed expectations are
// counted in the summary; an engine error stops the script and is returned.
func (r *Runner) Run(ctx context.Context, s *runtime.Session, script Script) (Summary, error) {
	sum := Summary{Script: script.Name}
	for i, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		began := time.Now()
		res := Result{Index: i + 1, Step: step.String()}

		err := r.exec(ctx, s, step, &res)
		res.Duration = time.Since(began)
		res.Active = activeNodes(s)
		if err != nil {
			res.Error = err.Error()
		}
		sum.Steps++
		if len(res.Failures) > 0 {
			sum.Failed++
		}
		if rerr := r.reporter.Step(ctx, res); rerr != nil {
			return sum, fmt.Errorf("failed to report step %d: %w", res.Index, rerr)
		}
		if err != nil {
			r.logger.ErrorContext(ctx, "script step failed", "script", script.Name, "step", res.Step, "error", err)
			return sum, fmt.Errorf("step %d (%s): %w", res.Index, res.Step, err)
		}
		if r.failFast && len(res.Failures) > 0 {
			break
		}
	}
	return sum, r.reporter.Done(ctx, sum)
}

func (r *Runner) exec(ctx context.Context, s *runtime.Session, step Step, res *Result) error {
	switch step.Kind {
	case StepInit:
		return s.Init(ctx)
	case StepStart:
		return s.Start(ctx, step.Flow, step.Node)
	case StepSet:
		return s.Set(ctx, step.Object, step.Value)
	case StepRetract:
		return s.Retract(ctx, step.Object)
	case StepExpect:
		if step.Expect == nil {
			return nil
		}
		failures, err := check(ctx, s, *step.Expect)
		res.Failures = failures
		return err
	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

func check(ctx context.Context, s *runtime.Session, e Expectation) ([]string, error) {
	var failures []string
	for _, ref := range e.Active {
		flowName, node, err := splitRef(ref)
		if err != nil {
			return nil, err
		}
		if !s.IsActive(flowName, node) {
			failures = append(failures, ref+" is not active")
		}
	}
	for _, ref := range e.Inactive {
		flowName, node, err := splitRef(ref)
		if err != nil {
			return nil, err
		}
		if s.IsActive(flowName, node) {
			failures = append(failures, ref+" is active")
		}
	}

	ids := make([]domain.ObjectID, 0, len(e.Values))
	for id := range e.Values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		want := e.Values[id]
		got, err := s.Board().Value(ctx, id)
		switch {
		case errors.Is(err, domain.ErrNoValue):
			failures = append(failures, fmt.Sprintf("%s has no value, want %v", id, want))
		case err != nil:
			return nil, err
		case !cond.Same(got, want):
			failures = append(failures, fmt.Sprintf("%s = %v, want %v", id, got, want))
		}
	}
	for _, id := range e.Missing {
		got, err := s.Board().Value(ctx, id)
		switch {
		case errors.Is(err, domain.ErrNoValue):
		case err != nil:
			return nil, err
		default:
			failures = append(failures, fmt.Sprintf("%s = %v, want no value", id, got))
		}
	}
	return failures, nil
}

func splitRef(ref string) (string, string, error) {
	flowName, node, ok := strings.Cut(ref, "/")
	if !ok || flowName == "" || node == "" {
		return "", "", fmt.Errorf("invalid node reference %q, want flow/node", ref)
	}
	return flowName, node, nil
}

func activeNodes(s *runtime.Session) []string {
	var out []string
	for _, run := range s.Runs() {
		out = append(out, run.Nodes...)
	}
	sort.Strings(out)
	return slices.Compact(out)
}

type nopReporter struct{}

func (nopReporter) Step(context.Context, Result) error  { return nil }
func (nopReporter) Done(context.Context, Summary) error { return nil }

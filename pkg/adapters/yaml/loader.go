package yaml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/flux/internal/logging"
	"github.com/aretw0/flux/pkg/flow"
	"github.com/aretw0/flux/pkg/registry"
	"github.com/aretw0/flux/pkg/runner"
	backend "gopkg.in/yaml.v3"
)

// Bundle is the content of a flow document.
type Bundle struct {
	Flows  []*flow.Flow
	Script *runner.Script
}

// Loader turns YAML documents into flows and scripts.
type Loader struct {
	formulas *registry.Registry
	logger   *slog.Logger
}

// Option configures the Loader.
type Option func(*Loader)

// WithFormulas sets the registry derive actions resolve formulas from.
func WithFormulas(r *registry.Registry) Option {
	return func(l *Loader) {
		if r != nil {
			l.formulas = r
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Loader using the default formula registry.
func New(opts ...Option) *Loader {
	l := &Loader{
		formulas: registry.Default(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFile reads and builds a flow document.
func (l *Loader) LoadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}
	return l.load(bytes.NewReader(data), path)
}

// Load reads and builds a flow document from r.
func (l *Loader) Load(r io.Reader) (*Bundle, error) {
	return l.load(r, "")
}

func (l *Loader) load(r io.Reader, origin string) (*Bundle, error) {
	var doc Document
	dec := backend.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse flow document: %w", err)
	}

	b := &Bundle{}
	for i, fd := range doc.Flows {
		f, err := l.buildFlow(fd, origin)
		if err != nil {
			if fd.Name == "" {
				return nil, fmt.Errorf("flow #%d: %w", i+1, err)
			}
			return nil, err
		}
		b.Flows = append(b.Flows, f)
	}
	if doc.Script != nil {
		s, err := buildScript(*doc.Script)
		if err != nil {
			return nil, err
		}
		b.Script = s
	}
	l.logger.Debug("flow document loaded", "origin", origin, "flows", len(b.Flows), "script", b.Script != nil)
	return b, nil
}

func (l *Loader) buildFlow(fd FlowDoc, origin string) (*flow.Flow, error) {
	if fd.Name == "" {
		return nil, errors.New("flow missing name")
	}
	id := fd.ID
	if id == "" {
		id = fd.Name
	}

	nodes := make([]flow.NodeSpec, 0, len(fd.Nodes))
	for _, nd := range fd.Nodes {
		spec, err := l.buildNode(nd)
		if err != nil {
			return nil, fmt.Errorf("flow %s node %s: %w", fd.Name, nd.ID, err)
		}
		nodes = append(nodes, spec)
	}

	edges := make([]flow.EdgeSpec, 0, len(fd.Edges))
	for _, ed := range fd.Edges {
		guard, err := decodeGuard(ed.When)
		if err != nil {
			return nil, fmt.Errorf("flow %s edge %s->%s: %w", fd.Name, ed.From, ed.To, err)
		}
		edges = append(edges, flow.EdgeSpec{ID: ed.ID, From: ed.From, To: ed.To, Guard: guard})
	}

	opts := []flow.Option{flow.WithAutostart(fd.Autostart), flow.WithMetadata(fd.Metadata)}
	if origin != "" {
		opts = append(opts, flow.WithOrigin(origin))
	}
	return flow.Build(id, fd.Name, nodes, edges, opts...)
}

func (l *Loader) buildNode(nd NodeDoc) (flow.NodeSpec, error) {
	spec := flow.NodeSpec{ID: nd.ID, Name: nd.Name}
	kind := nd.Kind
	switch {
	case kind != "":
	case nd.Action != nil:
		kind = "action"
	case nd.Call != nil:
		kind = "call"
	default:
		return spec, errors.New("node needs a kind, an action or a call")
	}
	k, err := flow.ParseKind(kind)
	if err != nil {
		return spec, err
	}
	spec.Kind = k

	if nd.Action != nil {
		a, err := decodeAction(nd.Action, l.formulas)
		if err != nil {
			return spec, err
		}
		spec.Action = a
	}
	if nd.Call != nil {
		spec.CallFlow, spec.CallStart = nd.Call.Flow, nd.Call.Start
	}
	return spec, nil
}

func buildScript(sd ScriptDoc) (*runner.Script, error) {
	s := &runner.Script{Name: sd.Name}
	for i, raw := range sd.Steps {
		step, err := decodeStep(raw)
		if err != nil {
			return nil, fmt.Errorf("script step %d: %w", i+1, err)
		}
		s.Steps = append(s.Steps, step)
	}
	return s, nil
}

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/aretw0/flux"
	"github.com/aretw0/flux/internal/logging"
	"github.com/aretw0/flux/pkg/adapters/yaml"
	"github.com/aretw0/flux/pkg/runner"
)

// Options are the settings shared by every command.
type Options struct {
	// File is a flow document or a directory of them.
	File     string
	LogLevel string
	LogJSON  bool
	// Redis is a redis:// URL. Empty keeps everything in memory.
	Redis string
	// StateDir keeps each session's facts in a JSON file under this directory.
	StateDir string
}

func (o Options) check() error {
	if o.Redis != "" && o.StateDir != "" {
		return fmt.Errorf("--redis and --state-dir are mutually exclusive")
	}
	return nil
}

// Logger builds the application logger. Logs go to w so command output stays clean.
func (o Options) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(o.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := []logging.Option{logging.WithWriter(w)}
	if o.LogJSON {
		opts = append(opts, logging.WithJSON())
	}
	return logging.New(level, opts...), nil
}

// Project is the set of flow documents a command works on.
type Project struct {
	Engine *flux.Engine
	Files  []string
	Script *runner.Script
}

// LoadProject loads every flow document at path into a validated engine.
// At most one document may carry a script.
func LoadProject(path string, logger *slog.Logger, opts ...flux.Option) (*Project, error) {
	files, err := documents(path)
	if err != nil {
		return nil, err
	}

	loader := yaml.New(yaml.WithLogger(logger))
	p := &Project{Files: files}
	var flows []*flux.Flow
	var scriptFile string
	for _, file := range files {
		b, err := loader.LoadFile(file)
		if err != nil {
			return nil, err
		}
		flows = append(flows, b.Flows...)
		if b.Script == nil {
			continue
		}
		if p.Script != nil {
			return nil, fmt.Errorf("both %s and %s define a script", scriptFile, file)
		}
		p.Script, scriptFile = b.Script, file
	}

	opts = append([]flux.Option{flux.WithLogger(logger)}, opts...)
	opts = append(opts, flux.WithFlows(flows...))
	p.Engine, err = flux.New(opts...)
	if err != nil {
		return nil, err
	}
	if err := p.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("inconsistent flows: %w", err)
	}
	logger.Debug("project loaded", "files", len(files), "flows", len(flows))
	return p, nil
}

// documents resolves path to the YAML files it designates, sorted.
func documents(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no flow documents in %s", path)
	}
	sort.Strings(files)
	return files, nil
}

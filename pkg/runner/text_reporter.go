package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// TextReporter writes results for humans.
type TextReporter struct {
	Writer  io.Writer
	Verbose bool
}

// NewTextReporter creates a text reporter. A nil writer means Stdout.
func NewTextReporter(w io.Writer) *TextReporter {
	if w == nil {
		w = os.Stdout
	}
	return &TextReporter{Writer: w}
}

func (h *TextReporter) Step(ctx context.Context, r Result) error {
	status := "ok"
	switch {
	case r.Error != "":
		status = "ERROR"
	case len(r.Failures) > 0:
		status = "FAIL"
	}
	if _, err := fmt.Fprintf(h.Writer, "%3d  %-5s %s\n", r.Index, status, r.Step); err != nil {
		return err
	}
	if r.Error != "" {
		if _, err := fmt.Fprintf(h.Writer, "       %s\n", r.Error); err != nil {
			return err
		}
	}
	for _, f := range r.Failures {
		if _, err := fmt.Fprintf(h.Writer, "       - %s\n", f); err != nil {
			return err
		}
	}
	if h.Verbose && len(r.Active) > 0 {
		if _, err := fmt.Fprintf(h.Writer, "       active: %s\n", strings.Join(r.Active, ", ")); err != nil {
			return err
		}
	}
	return nil
}

func (h *TextReporter) Done(ctx context.Context, s Summary) error {
	name := s.Script
	if name == "" {
		name = "script"
	}
	_, err := fmt.Fprintf(h.Writer, "%s: %d steps, %d failed\n", name, s.Steps, s.Failed)
	return err
}

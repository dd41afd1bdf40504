package runner

import (
	"context"
	"encoding/json"
	"io"
	"os"
)

// JSONReporter writes one JSON object per line, for tooling.
type JSONReporter struct {
	Encoder *json.Encoder
}

// NewJSONReporter creates a JSON-lines reporter. A nil writer means Stdout.
func NewJSONReporter(w io.Writer) *JSONReporter {
	if w == nil {
		w = os.Stdout
	}
	return &JSONReporter{Encoder: json.NewEncoder(w)}
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (h *JSONReporter) Step(ctx context.Context, r Result) error {
	return h.Encoder.Encode(envelope{Type: "step", Data: r})
}

func (h *JSONReporter) Done(ctx context.Context, s Summary) error {
	return h.Encoder.Encode(envelope{Type: "summary", Data: s})
}

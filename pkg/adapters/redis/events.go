package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aretw0/flux/internal/logging"
	"github.com/aretw0/flux/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultTraceLength bounds the trace list of a session.
const DefaultTraceLength = 1000

// EventSink appends trace events to a capped Redis list per session.
// Emit never fails the engine: write errors are logged and dropped.
type EventSink struct {
	client *backend.Client
	prefix string
	max    int64
	logger *slog.Logger
}

// SinkOption configures an EventSink.
type SinkOption func(*EventSink)

// WithSinkPrefix sets the key prefix.
func WithSinkPrefix(prefix string) SinkOption {
	return func(s *EventSink) { s.prefix = prefix }
}

// WithMaxLength caps the number of events kept per session.
func WithMaxLength(n int64) SinkOption {
	return func(s *EventSink) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithSinkLogger sets the logger used to report dropped events.
func WithSinkLogger(logger *slog.Logger) SinkOption {
	return func(s *EventSink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewEventSink creates a Redis trace sink.
func NewEventSink(client *backend.Client, opts ...SinkOption) *EventSink {
	s := &EventSink{
		client: client,
		prefix: DefaultPrefix,
		max:    DefaultTraceLength,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EventSink) key(session string) string { return s.prefix + "trace:" + session }

// Emit implements domain.EventSink.
func (s *EventSink) Emit(ctx context.Context, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to encode trace event", "type", ev.Type, "error", err)
		return
	}
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.key(ev.Session), data)
	pipe.LTrim(ctx, s.key(ev.Session), -s.max, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to publish trace event", "type", ev.Type, "error", err)
	}
}

// Events returns the retained trace of a session, oldest first.
func (s *EventSink) Events(ctx context.Context, session string) ([]domain.Event, error) {
	raw, err := s.client.LRange(ctx, s.key(session), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(raw))
	for _, data := range raw {
		var ev domain.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

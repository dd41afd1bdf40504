package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/flux/pkg/domain"
)

// LogSink writes trace events to a structured logger.
// Support and edge events are logged at Debug, the rest at Info.
type LogSink struct {
	Logger *slog.Logger
}

// Emit implements domain.EventSink.
func (s LogSink) Emit(ctx context.Context, ev domain.Event) {
	if s.Logger == nil {
		return
	}
	level := slog.LevelInfo
	switch ev.Type {
	case domain.EventSupportAdded, domain.EventSupportRemoved, domain.EventEdgeFired, domain.EventEdgeRetracted:
		level = slog.LevelDebug
	case domain.EventRolledBack:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{slog.String("session", ev.Session)}
	add := func(key, value string) {
		if value != "" {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	add("run", ev.Run)
	add("flow", ev.Flow)
	add("node", ev.Node)
	add("kind", ev.Kind)
	add("edge", ev.Edge)
	add("object", string(ev.Object))
	add("detail", ev.Detail)
	if len(ev.Members) > 0 {
		attrs = append(attrs, slog.Any("members", ev.Members))
	}
	s.Logger.LogAttrs(ctx, level, string(ev.Type), attrs...)
}

// Multi fans an event out to several sinks in order.
type Multi []domain.EventSink

// Emit implements domain.EventSink.
func (m Multi) Emit(ctx context.Context, ev domain.Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

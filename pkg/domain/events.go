package domain

import (
	"context"
	"time"
)

// EventType defines the category of a trace event.
type EventType string

const (
	EventNodeActivated          EventType = "node_activated"
	EventNodeDeactivated        EventType = "node_deactivated"
	EventSupportAdded           EventType = "support_added"
	EventSupportRemoved         EventType = "support_removed"
	EventEdgeFired              EventType = "edge_fired"
	EventEdgeRetracted          EventType = "edge_retracted"
	EventCheckpointRegistered   EventType = "checkpoint_registered"
	EventCheckpointUnregistered EventType = "checkpoint_unregistered"
	EventSnapshotTaken          EventType = "snapshot_taken"
	EventRunStarted             EventType = "run_started"
	EventRunCompleted           EventType = "run_completed"
	EventRunClosed              EventType = "run_closed"
	EventRolledBack             EventType = "transaction_rolled_back"
)

// Event is a structured trace record. Fields not relevant to the type are empty.
type Event struct {
	Time    time.Time `json:"time"`
	Type    EventType `json:"type"`
	Session string    `json:"session"`
	Run     string    `json:"run,omitempty"`
	Flow    string    `json:"flow,omitempty"`
	Node    string    `json:"node,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	Edge    string    `json:"edge,omitempty"`
	Object  ObjectID  `json:"object,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Members []string  `json:"members,omitempty"`
}

// EventSink receives trace events. Emit must not block propagation for long
// and must not call back into the engine.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

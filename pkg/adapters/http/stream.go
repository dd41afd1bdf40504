package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/flux/internal/logging"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// StreamManager fans trace events out to SSE subscribers, per session.
// It implements domain.EventSink.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{}
	buffer      int
	logger      *slog.Logger
}

// NewStreamManager creates a StreamManager. Each subscriber buffers up to
// buffer messages; slow clients lose the overflow.
func NewStreamManager(buffer int, logger *slog.Logger) *StreamManager {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
		buffer:      buffer,
		logger:      logger,
	}
}

// Subscribe registers a channel for the events of a session.
func (sm *StreamManager) Subscribe(sessionID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, sm.buffer)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[sessionID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, sessionID)
				}
			}
		})
	}
}

// Subscribers returns the number of subscribers of a session.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}

// Broadcast sends msg to every subscriber of the session without blocking.
func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("sse client buffer full, dropping event", "session_id", sessionID)
		}
	}
}

// Emit implements domain.EventSink.
func (sm *StreamManager) Emit(ctx context.Context, ev domain.Event) {
	if sm.Subscribers(ev.Session) == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		sm.logger.Error("failed to encode event", "type", ev.Type, "err", err)
		return
	}
	sm.Broadcast(ev.Session, string(data))
}

// SubscribeEvents handles GET /sessions/{session}/events (SSE).
// The optional types query parameter is a comma separated list of event
// types to forward.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, s.Logger, http.StatusInternalServerError, errorBody{Error: "streaming not supported"})
		return
	}
	sessionID := chi.URLParam(r, "session")
	if _, err := s.Sessions.Get(sessionID); err != nil {
		s.fail(w, r, err)
		return
	}

	filter := make(map[domain.EventType]bool)
	if types := r.URL.Query().Get("types"); types != "" {
		for _, t := range strings.Split(types, ",") {
			filter[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.Logger.Info("sse client subscribed", "session_id", sessionID)

	for {
		select {
		case <-r.Context().Done():
			s.Logger.Info("sse client disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(filter) > 0 {
				var ev struct {
					Type domain.EventType `json:"type"`
				}
				if err := json.Unmarshal([]byte(msg), &ev); err == nil && !filter[ev.Type] {
					continue
				}
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

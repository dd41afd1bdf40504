package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"

	"github.com/aretw0/flux/internal/logging"
	"github.com/aretw0/flux/internal/presentation/graph"
	"github.com/aretw0/flux/internal/runtime"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes a session.Manager over HTTP.
type Server struct {
	Sessions *session.Manager
	Streams  *StreamManager
	Metrics  http.Handler
	Logger   *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithStreams enables the per-session SSE trace endpoint. The StreamManager
// must also be installed as an event sink of the engine.
func WithStreams(streams *StreamManager) Option {
	return func(s *Server) { s.Streams = streams }
}

// WithMetrics mounts h (typically promhttp.Handler()) on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.Metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

// NewHandler creates the HTTP handler for the sessions of a manager.
func NewHandler(sessions *session.Manager, opts ...Option) http.Handler {
	s := &Server{Sessions: sessions, Logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/flows", s.ListFlows)
	r.Get("/flows/{flow}/graph", s.GetGraph)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Route("/{session}", func(r chi.Router) {
			r.Post("/", s.OpenSession)
			r.Get("/", s.GetSession)
			r.Delete("/", s.CloseSession)
			r.Post("/start", s.Start)
			r.Get("/runs", s.ListRuns)
			r.Get("/facts", s.ListFacts)
			r.Get("/facts/{object}", s.GetFact)
			r.Put("/facts/{object}", s.SetFact)
			r.Delete("/facts/{object}", s.RetractFact)
			r.Get("/nodes/{flow}/{node}", s.GetNode)
			if s.Streams != nil {
				r.Get("/events", s.SubscribeEvents)
			}
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FlowInfo describes a registered flow.
type FlowInfo struct {
	Name      string            `json:"name"`
	ID        string            `json:"id"`
	Origin    string            `json:"origin,omitempty"`
	Autostart bool              `json:"autostart"`
	Nodes     int               `json:"nodes"`
	Edges     int               `json:"edges"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionInfo is the state of an open session.
type SessionInfo struct {
	ID    string            `json:"id"`
	Cycle uint64            `json:"cycle"`
	Runs  []runtime.RunInfo `json:"runs"`
}

// NodeInfo is the activation state of a node.
type NodeInfo struct {
	Flow     string              `json:"flow"`
	Node     string              `json:"node"`
	Active   bool                `json:"active"`
	Supports map[string][]string `json:"supports,omitempty"`
	Snapshot *uint64             `json:"snapshot,omitempty"`
}

// Fact is the merged value of an object.
type Fact struct {
	Object domain.ObjectID `json:"object"`
	Value  any             `json:"value"`
}

type startRequest struct {
	Flow  string `json:"flow"`
	Start string `json:"start"`
}

type factRequest struct {
	Value any `json:"value"`
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Logger, http.StatusOK, map[string]string{"status": "ok"})
}

// ListFlows handles GET /flows.
func (s *Server) ListFlows(w http.ResponseWriter, r *http.Request) {
	flows := s.Sessions.Engine().Flows().Flows()
	out := make([]FlowInfo, 0, len(flows))
	for _, f := range flows {
		out = append(out, FlowInfo{
			Name:      f.Name(),
			ID:        f.ID(),
			Origin:    f.Origin(),
			Autostart: f.Autostart(),
			Nodes:     f.NodeCount(),
			Edges:     f.EdgeCount(),
			Metadata:  f.Metadata(),
		})
	}
	writeJSON(w, s.Logger, http.StatusOK, out)
}

// GetGraph handles GET /flows/{flow}/graph. The optional session query
// parameter paints the session's active nodes.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	set := s.Sessions.Engine().Flows()
	name := chi.URLParam(r, "flow")
	f, ok := set.Flow(name)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, name))
		return
	}

	var overlay *graph.Overlay
	if id := r.URL.Query().Get("session"); id != "" {
		err := s.Sessions.WithSession(r.Context(), id, func(_ context.Context, sess *runtime.Session) error {
			overlay = graph.FromSession(set, sess)
			return nil
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(graph.Mermaid(f, overlay))); err != nil {
		s.Logger.Error("graph response write failed", "err", err)
	}
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Logger, http.StatusOK, s.Sessions.List())
}

// OpenSession handles POST /sessions/{session}. Opening an open session is a no-op.
func (s *Server) OpenSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")
	if _, err := s.Sessions.Open(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondSession(w, r, id, http.StatusCreated)
}

// GetSession handles GET /sessions/{session}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	s.respondSession(w, r, chi.URLParam(r, "session"), http.StatusOK)
}

func (s *Server) respondSession(w http.ResponseWriter, r *http.Request, id string, status int) {
	var info SessionInfo
	err := s.Sessions.WithSession(r.Context(), id, func(_ context.Context, sess *runtime.Session) error {
		info = SessionInfo{ID: sess.ID(), Cycle: sess.Cycle(), Runs: sess.Runs()}
		if info.Runs == nil {
			info.Runs = []runtime.RunInfo{}
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, s.Logger, status, info)
}

// CloseSession handles DELETE /sessions/{session}.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Close(r.Context(), chi.URLParam(r, "session")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start handles POST /sessions/{session}/start.
func (s *Server) Start(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Flow == "" {
		s.badRequest(w, r, "invalid request body: flow is required", err)
		return
	}
	id := chi.URLParam(r, "session")
	err := s.Sessions.WithSession(r.Context(), id, func(ctx context.Context, sess *runtime.Session) error {
		return sess.Start(ctx, body.Flow, body.Start)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondSession(w, r, id, http.StatusOK)
}

// ListRuns handles GET /sessions/{session}/runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	var runs []runtime.RunInfo
	err := s.Sessions.WithSession(r.Context(), chi.URLParam(r, "session"), func(_ context.Context, sess *runtime.Session) error {
		runs = sess.Runs()
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []runtime.RunInfo{}
	}
	writeJSON(w, s.Logger, http.StatusOK, runs)
}

// ListFacts handles GET /sessions/{session}/facts.
func (s *Server) ListFacts(w http.ResponseWriter, r *http.Request) {
	out := []Fact{}
	err := s.Sessions.WithSession(r.Context(), chi.URLParam(r, "session"), func(ctx context.Context, sess *runtime.Session) error {
		objects, err := sess.Board().Objects(ctx)
		if err != nil {
			return err
		}
		sort.Slice(objects, func(i, j int) bool { return objects[i] < objects[j] })
		for _, obj := range objects {
			v, err := sess.Board().Value(ctx, obj)
			if errors.Is(err, domain.ErrNoValue) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, Fact{Object: obj, Value: v})
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, s.Logger, http.StatusOK, out)
}

// GetFact handles GET /sessions/{session}/facts/{object}.
func (s *Server) GetFact(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.object(w, r)
	if !ok {
		return
	}
	var fact Fact
	err := s.Sessions.WithSession(r.Context(), chi.URLParam(r, "session"), func(ctx context.Context, sess *runtime.Session) error {
		v, err := sess.Board().Value(ctx, obj)
		fact = Fact{Object: obj, Value: v}
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, s.Logger, http.StatusOK, fact)
}

// SetFact handles PUT /sessions/{session}/facts/{object} with a {"value": ...} body.
func (s *Server) SetFact(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.object(w, r)
	if !ok {
		return
	}
	var body factRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, r, "invalid request body", err)
		return
	}
	err := s.Sessions.WithSession(r.Context(), chi.URLParam(r, "session"), func(ctx context.Context, sess *runtime.Session) error {
		return sess.Set(ctx, obj, body.Value)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, s.Logger, http.StatusOK, Fact{Object: obj, Value: body.Value})
}

// RetractFact handles DELETE /sessions/{session}/facts/{object}.
func (s *Server) RetractFact(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.object(w, r)
	if !ok {
		return
	}
	err := s.Sessions.WithSession(r.Context(), chi.URLParam(r, "session"), func(ctx context.Context, sess *runtime.Session) error {
		return sess.Retract(ctx, obj)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetNode handles GET /sessions/{session}/nodes/{flow}/{node}.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	flowName, node := chi.URLParam(r, "flow"), chi.URLParam(r, "node")
	if _, ok := s.Sessions.Engine().Flows().Lookup(flowName, node); !ok {
		s.fail(w, r, fmt.Errorf("%w: %s/%s", domain.ErrNodeNotFound, flowName, node))
		return
	}
	info := NodeInfo{Flow: flowName, Node: node}
	err := s.Sessions.WithSession(r.Context(), chi.URLParam(r, "session"), func(_ context.Context, sess *runtime.Session) error {
		info.Active = sess.IsActive(flowName, node)
		info.Supports = sess.Supports(flowName, node)
		if cycle, ok := sess.LatestSnapshot(flowName, node); ok {
			info.Snapshot = &cycle
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, s.Logger, http.StatusOK, info)
}

func (s *Server) object(w http.ResponseWriter, r *http.Request) (domain.ObjectID, bool) {
	raw := chi.URLParam(r, "object")
	obj, err := url.PathUnescape(raw)
	if err != nil || obj == "" {
		s.badRequest(w, r, "invalid object name", err)
		return "", false
	}
	return domain.ObjectID(obj), true
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.Logger.Warn("rejected request", "path", r.URL.Path, "reason", msg, "err", err)
	writeJSON(w, s.Logger, http.StatusBadRequest, errorBody{Error: msg})
}

type errorBody struct {
	Error string `json:"error"`
}

// fail maps engine errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", "path", r.URL.Path, "err", err)
	} else {
		s.Logger.Debug("request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, s.Logger, status, errorBody{Error: err.Error()})
}

func statusOf(err error) int {
	var (
		cfg    *domain.ConfigError
		act    *domain.ActionError
		depth  *domain.DepthError
		verror *domain.ValidationError
	)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrFlowNotFound),
		errors.Is(err, domain.ErrNodeNotFound),
		errors.Is(err, domain.ErrNoValue):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusConflict
	case errors.As(err, &cfg), errors.As(err, &act), errors.As(err, &depth), errors.As(err, &verror):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}

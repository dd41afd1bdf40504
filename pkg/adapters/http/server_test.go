package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/flux/internal/runtime"
	"github.com/aretw0/flux/pkg/action"
	fluxhttp "github.com/aretw0/flux/pkg/adapters/http"
	"github.com/aretw0/flux/pkg/adapters/memory"
	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/domain"
	"github.com/aretw0/flux/pkg/dsl"
	"github.com/aretw0/flux/pkg/flow"
	"github.com/aretw0/flux/pkg/observability"
	"github.com/aretw0/flux/pkg/ports"
	"github.com/aretw0/flux/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, sink domain.EventSink) *session.Manager {
	t.Helper()
	b := dsl.New("Main").Autostart()
	b.Add("start").Start().Go("ask")
	b.Add("ask").Do(action.Set("asked", true)).When(cond.Equal("answer", "yes"), "gate")
	b.Add("gate").Checkpoint().Go("done")
	b.Add("done").End()

	set := flow.NewSet()
	require.NoError(t, set.Register(b.MustBuild()))
	var opts []runtime.Option
	if sink != nil {
		opts = append(opts, runtime.WithEventSink(sink))
	}
	engine := runtime.NewEngine(set, opts...)
	return session.NewManager(engine, func(context.Context, string) (ports.Blackboard, error) {
		return memory.NewBlackboard(), nil
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandler_SessionLifecycle(t *testing.T) {
	h := fluxhttp.NewHandler(newManager(t, nil))

	w := do(t, h, http.MethodPost, "/sessions/s1", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	info := decode[fluxhttp.SessionInfo](t, w)
	assert.Equal(t, "s1", info.ID)
	require.Len(t, info.Runs, 1)
	assert.Equal(t, []string{"Main/start"}, info.Runs[0].Starts)

	w = do(t, h, http.MethodGet, "/sessions", nil)
	assert.Equal(t, []string{"s1"}, decode[[]string](t, w))

	w = do(t, h, http.MethodGet, "/flows", nil)
	flows := decode[[]fluxhttp.FlowInfo](t, w)
	require.Len(t, flows, 1)
	assert.Equal(t, "Main", flows[0].Name)
	assert.True(t, flows[0].Autostart)
	assert.Equal(t, 4, flows[0].Nodes)

	w = do(t, h, http.MethodGet, "/sessions/s1/nodes/Main/ask", nil)
	require.Equal(t, http.StatusOK, w.Code)
	node := decode[fluxhttp.NodeInfo](t, w)
	assert.True(t, node.Active)
	assert.Len(t, node.Supports, 1)
	assert.Nil(t, node.Snapshot)

	w = do(t, h, http.MethodGet, "/sessions/s1/facts/asked", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[fluxhttp.Fact](t, w).Value)

	w = do(t, h, http.MethodGet, "/sessions/s1/facts/answer", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPut, "/sessions/s1/facts/answer", map[string]any{"value": "yes"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/sessions/s1/nodes/Main/gate", nil)
	node = decode[fluxhttp.NodeInfo](t, w)
	require.NotNil(t, node.Snapshot)

	w = do(t, h, http.MethodGet, "/sessions/s1/facts", nil)
	facts := decode[[]fluxhttp.Fact](t, w)
	assert.Contains(t, facts, fluxhttp.Fact{Object: "answer", Value: "yes"})
	assert.Contains(t, facts, fluxhttp.Fact{Object: "asked", Value: true})

	w = do(t, h, http.MethodDelete, "/sessions/s1/facts/answer", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, "/sessions/s1/facts/answer", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodDelete, "/sessions/s1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, "/sessions/s1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Errors(t *testing.T) {
	h := fluxhttp.NewHandler(newManager(t, nil))
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions/s1", nil).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown session", http.MethodGet, "/sessions/ghost/runs", nil, http.StatusNotFound},
		{"start without flow", http.MethodPost, "/sessions/s1/start", map[string]any{}, http.StatusBadRequest},
		{"start unknown flow", http.MethodPost, "/sessions/s1/start", map[string]any{"flow": "Ghost"}, http.StatusUnprocessableEntity},
		{"graph of unknown flow", http.MethodGet, "/flows/Ghost/graph", nil, http.StatusNotFound},
		{"unknown node", http.MethodGet, "/sessions/s1/nodes/Main/ghost", nil, http.StatusNotFound},
		{"set without body", http.MethodPut, "/sessions/s1/facts/x", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestHandler_StartAndGraph(t *testing.T) {
	h := fluxhttp.NewHandler(newManager(t, nil))
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions/s1", nil).Code)

	w := do(t, h, http.MethodPost, "/sessions/s1/start", map[string]any{"flow": "Main"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[fluxhttp.SessionInfo](t, w).Runs, 1, "start node already active")

	w = do(t, h, http.MethodGet, "/flows/Main/graph?session=s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "graph TD")
	assert.Contains(t, w.Body.String(), "class Main_ask active;")

	w = do(t, h, http.MethodGet, "/flows/Main/graph", nil)
	assert.NotContains(t, w.Body.String(), "classDef")
}

func TestHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	h := fluxhttp.NewHandler(newManager(t, metrics), fluxhttp.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions/s1", nil).Code)

	w := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `flux_events_total{type="run_started"} 1`)
	assert.Contains(t, w.Body.String(), `flux_runs_open{session="s1"} 1`)
}

func TestStreamManager(t *testing.T) {
	sm := fluxhttp.NewStreamManager(1, nil)
	ch, cancel := sm.Subscribe("s1")
	assert.Equal(t, 1, sm.Subscribers("s1"))

	sm.Emit(context.Background(), domain.Event{Type: domain.EventRunStarted, Session: "s1", Run: "r1"})
	sm.Emit(context.Background(), domain.Event{Type: domain.EventRunStarted, Session: "s1", Run: "r2"})
	sm.Emit(context.Background(), domain.Event{Type: domain.EventRunStarted, Session: "s2", Run: "r3"})

	msg := <-ch
	assert.Contains(t, msg, `"run":"r1"`)
	select {
	case extra := <-ch:
		t.Fatalf("overflow should be dropped, got %s", extra)
	default:
	}

	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers("s1"))
	_, open := <-ch
	assert.False(t, open)
}

func TestHandler_SubscribeEvents(t *testing.T) {
	streams := fluxhttp.NewStreamManager(0, nil)
	h := fluxhttp.NewHandler(newManager(t, streams), fluxhttp.WithStreams(streams))
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/sessions/s1", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/s1/events?types=snapshot_taken", nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	lines := bufio.NewReader(stream.Body)
	readData := func() string {
		for {
			line, err := lines.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			}
		}
	}
	require.Equal(t, "connected", readData())

	put, err := http.NewRequest(http.MethodPut, srv.URL+"/sessions/s1/facts/answer", strings.NewReader(`{"value":"yes"}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(put)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ev domain.Event
	require.NoError(t, json.Unmarshal([]byte(readData()), &ev))
	assert.Equal(t, domain.EventSnapshotTaken, ev.Type)
	assert.Equal(t, "s1", ev.Session)
	assert.Equal(t, "gate", ev.Node)
}

func TestHandler_EventsDisabledWithoutStreams(t *testing.T) {
	h := fluxhttp.NewHandler(newManager(t, nil))
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sessions/s1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/sessions/s1/events", nil).Code)
}

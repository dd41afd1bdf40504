package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/flux"
	"github.com/aretw0/flux/pkg/adapters/file"
	"github.com/aretw0/flux/pkg/adapters/redis"
	"github.com/aretw0/flux/pkg/observability"
	"github.com/aretw0/flux/pkg/ports"
	"github.com/aretw0/flux/pkg/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
)

// ErrScriptFailed is returned when a script ran to completion with failed expectations.
var ErrScriptFailed = errors.New("script failed")

// RunOptions configure the run command.
type RunOptions struct {
	Options
	Session     string
	JSON        bool
	Verbose     bool
	FailFast    bool
	MetricsAddr string
}

// Run replays the project's script against a new session and reports each step to w.
func Run(ctx context.Context, w io.Writer, opts RunOptions, logger *slog.Logger) error {
	if err := opts.check(); err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return err
	}
	sinks := observability.Multi{metrics, observability.LogSink{Logger: logger}}

	var client *backend.Client
	if opts.Redis != "" {
		client, err = openRedis(ctx, opts.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		sinks = append(sinks, redis.NewEventSink(client, redis.WithSinkLogger(logger)))
	}

	p, err := LoadProject(opts.File, logger, flux.WithEventSink(sinks))
	if err != nil {
		return err
	}
	if p.Script == nil {
		return fmt.Errorf("%s defines no script", opts.File)
	}

	if opts.MetricsAddr != "" {
		stop := serveMetrics(opts.MetricsAddr, reg, logger)
		defer stop()
	}

	id := opts.Session
	if id == "" {
		id = p.Script.Name
	}
	var board ports.Blackboard
	switch {
	case client != nil:
		board = redis.NewBlackboard(client, id)
	case opts.StateDir != "":
		fb, err := file.New(opts.StateDir).Board(ctx, id)
		if err != nil {
			return err
		}
		board = fb
	}
	s := p.Engine.NewSession(id, board)
	defer s.Cancel(ctx)

	var reporter runner.Reporter = &runner.TextReporter{Writer: w, Verbose: opts.Verbose}
	if opts.JSON {
		reporter = runner.NewJSONReporter(w)
	}
	r := runner.New(
		runner.WithReporter(reporter),
		runner.WithLogger(logger),
		runner.WithFailFast(opts.FailFast),
	)
	sum, err := r.Run(ctx, s, *p.Script)
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%w: %d of %d steps failed", ErrScriptFailed, sum.Failed, sum.Steps)
	}
	return nil
}

func openRedis(ctx context.Context, url string) (*backend.Client, error) {
	opts, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := backend.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return client, nil
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

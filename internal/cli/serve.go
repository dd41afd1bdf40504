package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/flux"
	"github.com/aretw0/flux/pkg/adapters/file"
	fluxhttp "github.com/aretw0/flux/pkg/adapters/http"
	"github.com/aretw0/flux/pkg/adapters/memory"
	"github.com/aretw0/flux/pkg/adapters/redis"
	"github.com/aretw0/flux/pkg/observability"
	"github.com/aretw0/flux/pkg/ports"
	"github.com/aretw0/flux/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
)

// ShutdownTimeout bounds the graceful shutdown of the server.
const ShutdownTimeout = 5 * time.Second

// ServeOptions configure the serve command.
type ServeOptions struct {
	Options
	Addr string
	// Ready, when set, receives the bound address once the server listens.
	Ready chan<- string
}

// Serve exposes the project's flows over HTTP until ctx is cancelled.
// With Redis configured, facts live in Redis and sessions are guarded by a
// distributed lock.
func Serve(ctx context.Context, opts ServeOptions, logger *slog.Logger) error {
	if err := opts.check(); err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return err
	}
	streams := fluxhttp.NewStreamManager(0, logger)
	sinks := observability.Multi{metrics, streams, observability.LogSink{Logger: logger}}

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

	boards := func(context.Context, string) (ports.Blackboard, error) { return memory.NewBlackboard(), nil }
	mgrOpts := []session.Option{
		session.WithLogger(logger),
		session.WithOnClose(metrics.Forget),
	}
	switch {
	case client != nil:
		boards = func(_ context.Context, id string) (ports.Blackboard, error) {
			return redis.NewBlackboard(client, id), nil
		}
		mgrOpts = append(mgrOpts, session.WithLocker(redis.NewLocker(client, redis.DefaultPrefix)))
	case opts.StateDir != "":
		store := file.New(opts.StateDir)
		boards = func(ctx context.Context, id string) (ports.Blackboard, error) {
			return store.Board(ctx, id)
		}
	}
	mgr := session.NewManager(p.Engine.Runtime(), boards, mgrOpts...)

	handler := fluxhttp.NewHandler(mgr,
		fluxhttp.WithStreams(streams),
		fluxhttp.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		fluxhttp.WithLogger(logger),
	)

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", opts.Addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", ln.Addr().String(), "flows", len(p.Engine.Flows().Flows()))
		serverErrors <- srv.Serve(ln)
	}()
	if opts.Ready != nil {
		opts.Ready <- ln.Addr().String()
	}

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down server", "cause", context.Cause(ctx))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", ShutdownTimeout, "err", err)
			return srv.Close()
		}
		return nil
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinivox/clinivox/internal/config"
	"github.com/clinivox/clinivox/internal/health"
	"github.com/clinivox/clinivox/internal/observe"
	"github.com/clinivox/clinivox/internal/server"
	"github.com/clinivox/clinivox/internal/worker"
	"github.com/spf13/cobra"
)

// metricsShutdownTimeout bounds the graceful shutdown of the optional
// metrics listener.
const metricsShutdownTimeout = 5 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the line-delimited JSON control server on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(parent context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(configPath, "")
	if err != nil {
		slog.Error("startup failed", "error", err)
		return err
	}

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	if addr := rt.cfg.Server.MetricsAddr; addr != "" {
		stopMetrics := startMetricsListener(addr, rt.workers)
		defer stopMetrics()
	}

	watcher, err := config.NewWatcher(configPath, applyConfigChange)
	if err != nil {
		slog.Warn("config watcher disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	// Workers load in the background; the server answers health probes
	// (ready:false) while models are still warming up.
	go rt.loader.Run(ctx)

	srv := server.New(rt.workers, rt.exec)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// applyConfigChange reacts to a rewritten config file. Log-level changes
// take effect immediately; turn thresholds and provider entries are fixed
// at startup, so those changes only produce a warning.
func applyConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		slog.SetDefault(newLogger(d.NewLogLevel))
		slog.Info("log level changed",
			"from", old.Server.LogLevel,
			"to", new.Server.LogLevel,
		)
	}
	if d.TurnsChanged {
		slog.Warn("turn thresholds changed, restart to apply")
	}
	if d.ProvidersChanged {
		slog.Warn("provider configuration changed, restart to apply")
	}
}

// startMetricsListener serves Prometheus metrics plus HTTP liveness and
// readiness probes on addr. Returns a function that shuts the listener
// down gracefully.
func startMetricsListener(addr string, workers *worker.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	h := health.New(health.Checker{
		Name: "workers",
		Check: func(context.Context) error {
			if !workers.IsReady() {
				return errors.New("workers still loading")
			}
			return nil
		},
	})
	h.Register(mux)

	httpSrv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("metrics listener started", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics listener failed", "error", err)
		}
	}()

	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			slog.Warn("metrics listener shutdown failed", "error", err)
		}
	}
}

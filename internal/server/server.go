// Package server provides the service lifecycle runner.
// cmd/otpd delegates to server.Run for signal handling, config loading,
// observability init, health checks, background workers, and graceful
// shutdown.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aelexs/clinic-otp/internal/config"
	"github.com/aelexs/clinic-otp/internal/domain"
	"github.com/aelexs/clinic-otp/internal/observability"
)

// Worker is a background task owned by the service. It must return when
// ctx is done. A non-nil error shuts the service down.
type Worker func(ctx context.Context) error

// SetupDeps is what Run hands to a service's composition root.
type SetupDeps struct {
	Config  *config.Config
	Logger  *slog.Logger
	HTTPMux *http.ServeMux

	// Go registers a worker that starts with the HTTP server and is stopped
	// by the shutdown signal.
	Go func(Worker)
}

// SetupFunc wires a service's handlers and workers. The returned cleanup
// runs after the HTTP server has drained.
type SetupFunc func(ctx context.Context, deps SetupDeps) (cleanup func(context.Context) error, err error)

// Params configures a service's lifecycle runner.
type Params struct {
	// Name identifies the service in logs, traces and /healthz.
	Name    string
	Version string
	Setup   SetupFunc
}

// Run executes the full service lifecycle. If ln is non-nil it is used
// instead of listening on the configured port.
func Run(ctx context.Context, p Params, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: p.Name,
		Environment: cfg.Environment,
	})

	// Startup order: telemetry -> setup -> HTTP server.
	telemetry, err := observability.InitTelemetry(ctx, observability.TelemetryConfig{
		ServiceName:    p.Name,
		ServiceVersion: p.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}

	var shuttingDown atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler(p.Name, &shuttingDown))

	var workers []Worker
	cleanup := func(context.Context) error { return nil }
	if p.Setup != nil {
		c, setupErr := p.Setup(ctx, SetupDeps{
			Config:  cfg,
			Logger:  logger,
			HTTPMux: mux,
			Go:      func(w Worker) { workers = append(workers, w) },
		})
		if setupErr != nil {
			flushTelemetry(logger, telemetry)
			return fmt.Errorf("setup %s: %w", p.Name, setupErr)
		}
		if c != nil {
			cleanup = c
		}
	}

	if ln == nil {
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", cfg.HTTP.Port))
		if err != nil {
			_ = cleanup(context.Background())
			flushTelemetry(logger, telemetry)
			return fmt.Errorf("listen: %w", err)
		}
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout(cfg),
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server",
			slog.String("addr", ln.Addr().String()),
			slog.String("environment", cfg.Environment),
		)
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	for _, w := range workers {
		g.Go(func() error { return w(gctx) })
	}

	// Shutdown trigger: waits for a signal or a failed goroutine, then drains
	// in reverse startup order.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("received shutdown signal, starting graceful shutdown")

		shuttingDown.Store(true)
		time.Sleep(domain.ShutdownDrainDelay)

		httpCtx, httpCancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer httpCancel()
		if shutdownErr := server.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}

		if cleanupErr := cleanup(httpCtx); cleanupErr != nil {
			logger.Error("service cleanup error", slog.String("error", cleanupErr.Error()))
		}

		flushTelemetry(logger, telemetry)

		logger.Info("shutdown complete")
		return nil
	})

	return g.Wait()
}

// writeTimeout leaves room for a send request to wait out the configured
// delivery timeout and still write its response.
func writeTimeout(cfg *config.Config) time.Duration {
	return cfg.OTP.Timeout + 5*time.Second
}

func flushTelemetry(logger *slog.Logger, t *observability.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
	defer cancel()
	if err := t.Shutdown(ctx); err != nil {
		logger.Error("failed to flush telemetry", slog.String("error", err.Error()))
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// healthHandler reports 503 once shutdown starts so load balancers stop
// routing before the listener closes.
func healthHandler(name string, shuttingDown *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := healthResponse{Status: "healthy", Service: name}
		status := http.StatusOK
		if shuttingDown.Load() {
			resp.Status = "shutting_down"
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

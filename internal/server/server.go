package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/lib/logger/sl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is everything the monitoring server reads from the jar store.
type Store interface {
	JarStore
	StoragePinger
}

// NewRouter builds the mux serving /metrics, /healthz and the /debug/jars routes.
func NewRouter(log *slog.Logger, reg *prometheus.Registry, store Store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.Handle("GET /healthz", NewHealthChecker(store, log))
	NewAdminHandler(store, log).Register(mux)

	return mux
}

// StartMonitoringServer serves the router on port until ctx is cancelled.
func StartMonitoringServer(ctx context.Context, log *slog.Logger, reg *prometheus.Registry, store Store, port int) {
	const (
		readHeaderTimeout = 5 * time.Second
		shutdownTimeout   = 5 * time.Second
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(log, reg, store),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Monitoring server shutdown failed", sl.Err(err))
		}
	}()

	log.InfoContext(ctx, "Starting monitoring server", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.ErrorContext(ctx, "Monitoring server failed", sl.Err(err))
		return
	}
	log.Info("Monitoring server stopped.")
}

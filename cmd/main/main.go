package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/config"
	"github.com/UnknownOlympus/cookiejar/internal/jarstore"
	"github.com/UnknownOlympus/cookiejar/internal/lib/logger/sl"
	"github.com/UnknownOlympus/cookiejar/internal/metrics"
	"github.com/UnknownOlympus/cookiejar/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
)

const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

// main is the entry point of the application.
func main() {
	var wgr sync.WaitGroup
	drainTimeout := 10 * time.Second

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	logger := setupLogger(cfg.Env)

	// Create a separate registry for metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	store := jarstore.New(logger, afero.NewOsFs(), cfg.Storage.Dir, cfg.Storage.Debounce, appMetrics)
	if err := store.Ping(ctx); err != nil {
		logger.ErrorContext(ctx, "Jar storage is not writable", "dir", cfg.Storage.Dir, sl.Err(err))
	}

	wgr.Add(1)
	go func() {
		defer wgr.Done()
		server.StartMonitoringServer(ctx, logger, reg, store, cfg.Server.Port)
	}()

	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.", "storage", cfg.Storage.Dir)

	<-ctx.Done()
	wgr.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	store.Drain(drainCtx)

	logger.Info("Application stopped gracefully...")
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelDebug,
				AddSource: false,
			}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelInfo,
				AddSource: false,
			}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelWarn,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{Key: "", Value: slog.Value{}}
					}
					return a
				},
			}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:     slog.LevelError,
				AddSource: false,
				ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
					if a.Key == slog.TimeKey {
						return slog.Attr{Key: "", Value: slog.Value{}}
					}
					return a
				},
			}),
		)

		log.Error(
			"The env parameter was not specified, or was invalid. Logging will be minimal, by default." +
				" Please specify the value of `env`: local, development, production")
	}

	return log
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/UnknownOlympus/cookiejar/internal/client"
	"github.com/UnknownOlympus/cookiejar/internal/config"
	"github.com/UnknownOlympus/cookiejar/internal/jarstore"
	"github.com/UnknownOlympus/cookiejar/internal/lib/logger/sl"
	"github.com/UnknownOlympus/cookiejar/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

// request is one fetch invocation.
type request struct {
	jarID     string
	method    string
	target    string
	userAgent string
}

// fetch performs one request through a persistent cookie jar:
//
//	fetch -jar session-1 https://example.com/login
func main() {
	jarID := flag.String("jar", "default", "jar identifier")
	method := flag.String("method", http.MethodGet, "HTTP method")
	verbose := flag.Bool("v", false, "log debug output to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: fetch [-jar id] [-method GET] [-v] <url>")
		os.Exit(2)
	}

	cfg := config.MustLoad()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	appMetrics := metrics.NewMetrics(prometheus.NewRegistry())
	store := jarstore.New(logger, afero.NewOsFs(), cfg.Storage.Dir, cfg.Storage.Debounce, appMetrics)
	httpClient := func(transport http.RoundTripper) *http.Client {
		return client.CreateHTTPClient(logger, transport, cfg.Client.Timeout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, logger, store, appMetrics, httpClient, request{
		jarID:     *jarID,
		method:    *method,
		target:    flag.Arg(0),
		userAgent: cfg.Client.UserAgent,
	}, os.Stdout, os.Stderr)
	stop()

	if err != nil {
		logger.Error("Fetch failed", sl.Err(err))
		os.Exit(1)
	}
}

// run sends req through the jar named by req.jarID and saves the jar before returning.
// The response status goes to status and the body to out.
func run(
	ctx context.Context,
	log *slog.Logger,
	store *jarstore.Store,
	m *metrics.Metrics,
	newClient func(http.RoundTripper) *http.Client,
	req request,
	out, status io.Writer,
) error {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if req.userAgent != "" {
		httpReq.Header.Set("User-Agent", req.userAgent)
	}

	defer func() {
		if flushErr := store.FlushJar(context.Background(), req.jarID); flushErr != nil {
			log.Warn("Jar was not saved", sl.Jar(req.jarID), sl.Err(flushErr))
		}
	}()

	httpClient := newClient(client.NewTransport(log, store, m, req.jarID, nil))

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	fmt.Fprintln(status, resp.Status)
	if _, err = io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	return nil
}

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/cookie"
	"github.com/UnknownOlympus/cookiejar/internal/lib/logger/sl"
	"github.com/UnknownOlympus/cookiejar/internal/metrics"
)

// JarStore is the part of the jar store the transport needs.
type JarStore interface {
	GetJar(ctx context.Context, id string) *cookie.Jar
	MarkDirty(id string)
}

// Transport is an http.RoundTripper that attaches cookies from one jar to every
// request and merges the Set-Cookie values of every response back into it.
type Transport struct {
	log     *slog.Logger
	store   JarStore
	metrics *metrics.Metrics
	jarID   string
	base    http.RoundTripper
	now     func() time.Time
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
func NewTransport(log *slog.Logger, store JarStore, m *metrics.Metrics, jarID string, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &Transport{
		log:     log.With(slog.String("op", "client.Transport"), sl.Jar(jarID)),
		store:   store,
		metrics: m,
		jarID:   jarID,
		base:    base,
		now:     time.Now,
	}
}

// RoundTrip implements http.RoundTripper. The caller's request is never modified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	jar := t.store.GetJar(ctx, t.jarID)

	outgoing := req
	if header := jar.Header(req.URL, t.now()); header != "" {
		outgoing = req.Clone(ctx)
		outgoing.Header.Set("Cookie", header)
		t.metrics.CookieHeaders.WithLabelValues("sent").Inc()
	} else {
		t.metrics.CookieHeaders.WithLabelValues("empty").Inc()
	}

	resp, err := t.base.RoundTrip(outgoing)
	if err != nil {
		return nil, fmt.Errorf("failed to request %s: %w", req.URL.Redacted(), err)
	}

	if t.merge(ctx, jar, req, resp.Header.Values("Set-Cookie")) {
		t.store.MarkDirty(t.jarID)
	}

	return resp, nil
}

// merge parses every Set-Cookie value and stores the valid ones. It reports
// whether the jar changed.
func (t *Transport) merge(ctx context.Context, jar *cookie.Jar, req *http.Request, values []string) bool {
	now := t.now()
	host := cookie.RequestHost(req.URL)
	changed := false

	for _, raw := range values {
		parsed, err := cookie.ParseSetCookie(raw, req.URL, now)
		if err != nil {
			if errors.Is(err, cookie.ErrMalformed) {
				t.metrics.SetCookies.WithLabelValues("malformed").Inc()
			}
			t.log.DebugContext(ctx, "Skipped Set-Cookie header", "host", host, sl.Err(err))
			continue
		}

		jar.Upsert(host, parsed, now)
		changed = true

		if parsed.Expired(now) {
			t.metrics.SetCookies.WithLabelValues("deleted").Inc()
		} else {
			t.metrics.SetCookies.WithLabelValues("stored").Inc()
		}
	}

	return changed
}

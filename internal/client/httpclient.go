package client

import (
	"log/slog"
	"net/http"
	"time"
)

// CreateHTTPClient initializes an HTTP client whose cookies are handled by transport.
// Redirect hops go through the transport too, so each hop sees the current jar.
func CreateHTTPClient(log *slog.Logger, transport http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, _ []*http.Request) error {
			log.Debug("Redirected to URL", "URL", req.URL)

			return nil
		},
	}
}

package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/cookie"
	"github.com/UnknownOlympus/cookiejar/internal/jarstore"
	"github.com/UnknownOlympus/cookiejar/internal/metrics"
	"github.com/UnknownOlympus/cookiejar/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockJarStore struct {
	mock.Mock
}

func (m *MockJarStore) PeekJar(ctx context.Context, id string) *cookie.Jar {
	args := m.Called(ctx, id)
	return args.Get(0).(*cookie.Jar)
}

func (m *MockJarStore) FlushJar(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJarStore) ClearJar(ctx context.Context, id string) {
	m.Called(ctx, id)
}

func (m *MockJarStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type fixture struct {
	fs      afero.Fs
	store   *jarstore.Store
	metrics *metrics.Metrics
	router  http.Handler
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	fs := afero.NewMemMapFs()
	m := metrics.NewMetrics(reg)
	store := jarstore.New(logger, fs, "/jars", time.Hour, m)

	return fixture{fs: fs, store: store, metrics: m, router: server.NewRouter(logger, reg, store)}
}

func seed(t *testing.T, jar *cookie.Jar, rawURL string, headers ...string) {
	t.Helper()

	now := time.Now()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	for _, header := range headers {
		c, err := cookie.ParseSetCookie(header, u, now)
		require.NoError(t, err)
		jar.Upsert(cookie.RequestHost(u), c, now)
	}
}

func TestAdmin_ListCookiesSkipsExpired(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	jar := fx.store.GetJar(context.Background(), "user 1")
	seed(t, jar, "https://example.com/", "sid=abc; HttpOnly", "theme=dark; Domain=example.com")
	jar.Upsert("example.com", cookie.Cookie{
		Name: "stale", Value: "x", Domain: "example.com", HostOnly: true, Path: "/old",
		ExpiresAt: func() *int64 { ms := time.Now().Add(-time.Minute).UnixMilli(); return &ms }(),
	}, time.Now().Add(-2*time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/debug/jars/user%201/cookies", nil)
	rr := httptest.NewRecorder()
	fx.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Jar     string          `json:"jar"`
		Cookies []cookie.Cookie `json:"cookies"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "user_1", body.Jar)
	require.Len(t, body.Cookies, 2)
	assert.Equal(t, "sid", body.Cookies[0].Name)
	assert.True(t, body.Cookies[0].HTTPOnly)
	assert.Equal(t, "theme", body.Cookies[1].Name)
}

func TestAdmin_ListCookiesEmptyJar(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/debug/jars/nobody/cookies", nil)
	rr := httptest.NewRecorder()
	fx.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"jar":"nobody","cookies":[]}`, rr.Body.String())
}

func TestAdmin_ListCookiesDoesNotCacheJars(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	require.NoError(t, afero.WriteFile(fx.fs, filepath.Join("/jars", "ondisk.json"),
		[]byte(`{"example.com":[{"name":"a","value":"1","domain":"example.com","hostOnly":true,"path":"/"}]}`), 0o600))

	for _, id := range []string{"ghost-1", "ghost-2", "ondisk"} {
		rr := httptest.NewRecorder()
		fx.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/jars/"+id+"/cookies", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		if id == "ondisk" {
			assert.Contains(t, rr.Body.String(), `"name":"a"`)
		}
	}

	assert.InDelta(t, 0, testutil.ToFloat64(fx.metrics.JarsCached), 0)
}

func TestAdmin_FlushAndDelete(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	seed(t, fx.store.GetJar(context.Background(), "doomed"), "https://example.com/", "a=1")
	path := filepath.Join("/jars", "doomed.json")

	rr := httptest.NewRecorder()
	fx.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/debug/jars/doomed/flush", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	exists, err := afero.Exists(fx.fs, path)
	require.NoError(t, err)
	require.True(t, exists)

	rr = httptest.NewRecorder()
	fx.router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/debug/jars/doomed", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	exists, err = afero.Exists(fx.fs, path)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 0, fx.store.GetJar(context.Background(), "doomed").Len())
}

func TestAdmin_FlushFailure(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := new(MockJarStore)
	store.On("FlushJar", mock.Anything, "broken").Return(assert.AnError)

	mux := http.NewServeMux()
	server.NewAdminHandler(store, logger).Register(mux)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/debug/jars/broken/flush", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	store.AssertExpectations(t)
}

func TestAdmin_DeleteUsesSanitizedID(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := new(MockJarStore)
	store.On("ClearJar", mock.Anything, "a_b").Return().Once()

	mux := http.NewServeMux()
	server.NewAdminHandler(store, logger).Register(mux)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/debug/jars/a:b", nil))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	store.AssertExpectations(t)
}

func TestRouter_MetricsAndHealth(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.store.GetJar(context.Background(), "counted")

	rr := httptest.NewRecorder()
	fx.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "cookiejar_jars_cached 1"))

	rr = httptest.NewRecorder()
	fx.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"storage":"ok"}`, rr.Body.String())
}

func TestStartMonitoringServer_StopsOnCancel(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		server.StartMonitoringServer(ctx, logger, prometheus.NewRegistry(), fx.store, 0)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitoring server did not stop after cancel")
	}
}

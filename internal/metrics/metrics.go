package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the various metrics used for monitoring the jar engine.
// It includes counters for jar loads, flushes and received Set-Cookie values,
// a gauge for cached jars, and a histogram for flush duration.
type Metrics struct {
	JarLoads      *prometheus.CounterVec
	JarsCached    prometheus.Gauge
	Flushes       *prometheus.CounterVec
	FlushDuration *prometheus.HistogramVec
	SetCookies    *prometheus.CounterVec
	CookieHeaders *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with the provided Registerer.
//
// Parameters:
//   - reg: A prometheus.Registerer used to register the metrics.
//
// Returns:
//   - A pointer to the newly created Metrics instance.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		JarLoads: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cookiejar_jar_loads_total",
			Help: "Total number of jars loaded into memory, by where the contents came from.",
		}, []string{"source"}), // source: 'disk', 'empty'
		JarsCached: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "cookiejar_jars_cached",
			Help: "Number of jars currently held in memory.",
		}),
		Flushes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cookiejar_flushes_total",
			Help: "Total number of jar writes to disk.",
		}, []string{"trigger", "status"}),
		FlushDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cookiejar_flush_duration_seconds",
			Help:    "Duration of atomic jar writes.",
			Buckets: prometheus.DefBuckets,
		}, []string{"trigger"}), // trigger: 'debounce', 'explicit', 'drain'
		SetCookies: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cookiejar_set_cookie_total",
			Help: "Total number of Set-Cookie values received from upstream.",
		}, []string{"result"}),
		CookieHeaders: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cookiejar_cookie_headers_total",
			Help: "Total number of outgoing requests, by whether a Cookie header was attached.",
		}, []string{"result"}),
	}

	for _, status := range []string{"success", "failure"} {
		for _, trigger := range []string{"debounce", "explicit", "drain"} {
			metrics.Flushes.WithLabelValues(trigger, status)
		}
	}
	metrics.SetCookies.WithLabelValues("stored")
	metrics.SetCookies.WithLabelValues("deleted")
	metrics.SetCookies.WithLabelValues("malformed")

	return metrics
}

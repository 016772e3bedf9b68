package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payflux.org/internal/engine"
)

// Engine metrics
var (
	engineEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_events_total",
			Help: "Transaction events processed, by kind and outcome.",
		},
		[]string{"type", "outcome", "reason"},
	)

	engineAccounts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_accounts",
		Help: "Accounts currently tracked by the engine.",
	})

	engineLockedAccounts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_locked_accounts",
		Help: "Accounts frozen by a chargeback.",
	})
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		engineEventsTotal, engineAccounts, engineLockedAccounts,
		httpInFlight, httpRequestsTotal, httpRequestDuration,
	)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOutcome counts one processed event.
func ObserveOutcome(tx engine.Transaction, out engine.Outcome) {
	outcome, reason := "applied", ""
	if !out.Applied {
		outcome, reason = "ignored", string(out.Reason)
	}
	engineEventsTotal.WithLabelValues(tx.Kind.String(), outcome, reason).Inc()
}

// SetAccountTotals updates the account gauges after a snapshot or run.
func SetAccountTotals(accounts, locked int) {
	engineAccounts.Set(float64(accounts))
	engineLockedAccounts.Set(float64(locked))
}

// Instrument wraps an HTTP handler with RPS, latency and in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric cardinality stays
// bounded.
func CanonicalPath(p string) string {
	if p == "" {
		return "/"
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if rest, ok := strings.CutPrefix(p, "/v1/accounts/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/v1/accounts/:client"
	}
	if rest, ok := strings.CutPrefix(p, "/v1/runs/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/v1/runs/:id"
	}
	return p
}

// statusWriter records the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

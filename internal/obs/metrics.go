package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by every handler.
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

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})
)

// Token lifecycle metrics. Rejections are counted alongside successes:
// a fail-closed denial is an observable event, not noise.
var (
	tokensMintedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authority_tokens_minted_total",
			Help: "Authority token mint attempts by outcome.",
		},
		[]string{"outcome"},
	)

	tokensDelegatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authority_tokens_delegated_total",
			Help: "Authority token delegation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	revocationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authority_revocations_total",
		Help: "Token revocations recorded by the host.",
	})

	boundaryChecksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authority_boundary_checks_total",
		Help: "Policy-boundary and restore validations performed.",
	})

	invalidTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authority_invalid_tokens_total",
			Help: "Tokens stripped during boundary validation, by reason.",
		},
		[]string{"reason"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
		tokensMintedTotal, tokensDelegatedTotal, revocationsTotal,
		boundaryChecksTotal, invalidTokensTotal,
	)
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ready bool) {
	if ready {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// CountMint records a mint attempt outcome ("ok" or "rejected").
func CountMint(outcome string) { tokensMintedTotal.WithLabelValues(outcome).Inc() }

// CountDelegation records a delegation attempt outcome.
func CountDelegation(outcome string) { tokensDelegatedTotal.WithLabelValues(outcome).Inc() }

// CountRevocation records a revocation.
func CountRevocation() { revocationsTotal.Inc() }

// CountBoundaryCheck records one validation pass plus the per-reason
// strip counts it produced.
func CountBoundaryCheck(strippedByReason map[string]int) {
	boundaryChecksTotal.Inc()
	for reason, n := range strippedByReason {
		invalidTokensTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// CanonicalPath collapses token identifiers out of URL paths so the
// path label stays low-cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if rest, ok := strings.CutPrefix(path, "/v1/tokens/"); ok && rest != "" {
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1:
			return "/v1/tokens/:id"
		case len(parts) == 2 && (parts[1] == "delegate" || parts[1] == "revoke"):
			return "/v1/tokens/:id/" + parts[1]
		}
	}
	return path
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
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

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE responses streaming through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

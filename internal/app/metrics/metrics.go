package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "earnd",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "earnd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "earnd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	accruals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "earnd",
			Subsystem: "ledger",
			Name:      "accruals_total",
			Help:      "Total number of balance credits by activity kind.",
		},
		[]string{"kind"},
	)

	accrualAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "earnd",
			Subsystem: "ledger",
			Name:      "accrued_satoshi_total",
			Help:      "Total satoshi credited by activity kind.",
		},
		[]string{"kind"},
	)

	withdrawals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "earnd",
			Subsystem: "withdrawals",
			Name:      "submissions_total",
			Help:      "Total number of withdrawal submissions by outcome.",
		},
		[]string{"status"},
	)

	miningFlushes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "earnd",
			Subsystem: "mining",
			Name:      "flushes_total",
			Help:      "Total number of mining accumulator flushes.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		accruals,
		accrualAmount,
		withdrawals,
		miningFlushes,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordAccrual records a balance credit.
func RecordAccrual(kind string, amount int64) {
	if kind == "" {
		kind = "unknown"
	}
	accruals.WithLabelValues(kind).Inc()
	if amount > 0 {
		accrualAmount.WithLabelValues(kind).Add(float64(amount))
	}
}

// RecordWithdrawal records a withdrawal submission outcome.
func RecordWithdrawal(status string) {
	withdrawals.WithLabelValues(status).Inc()
}

// RecordMiningFlush records one mining accumulator flush.
func RecordMiningFlush() {
	miningFlushes.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 1 {
		return "/" + parts[0]
	}
	return "/" + parts[0] + "/" + parts[1]
}

// Package metrics exposes the Prometheus collectors for the HTTP API and the account workflows.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "account_mirror",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "account_mirror",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "account_mirror",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "account_mirror",
			Subsystem: "registration",
			Name:      "completed_total",
			Help:      "Accounts created by the registration workflow.",
		},
		[]string{"kind"},
	)

	otpVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "account_mirror",
			Subsystem: "otp",
			Name:      "verifications_total",
			Help:      "OTP verification attempts by outcome.",
		},
		[]string{"result"},
	)

	mirrorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "account_mirror",
			Subsystem: "mirror",
			Name:      "calls_total",
			Help:      "Calls to the external identity mirror by operation and outcome.",
		},
		[]string{"op", "result"},
	)

	mirrorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "account_mirror",
			Subsystem: "mirror",
			Name:      "call_duration_seconds",
			Help:      "Duration of calls to the external identity mirror.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"op"},
	)

	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "account_mirror",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by method and outcome.",
		},
		[]string{"method", "result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		registrations,
		otpVerifications,
		mirrorCalls,
		mirrorDuration,
		logins,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with request count, latency and in-flight metrics.
// Routes are labelled by their chi pattern so path parameters do not explode cardinality.
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

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordRegistration counts a completed registration for the given account kind.
func RecordRegistration(kind string) {
	registrations.WithLabelValues(kind).Inc()
}

// RecordOTPVerification counts an OTP verification outcome.
func RecordOTPVerification(ok bool) {
	otpVerifications.WithLabelValues(result(ok)).Inc()
}

// RecordMirrorCall records one external mirror operation.
func RecordMirrorCall(op string, duration time.Duration, ok bool) {
	if op == "" {
		op = "unknown"
	}
	mirrorCalls.WithLabelValues(op, result(ok)).Inc()
	mirrorDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordLogin counts a login attempt for method (password, otp, refresh).
func RecordLogin(method string, ok bool) {
	logins.WithLabelValues(method, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

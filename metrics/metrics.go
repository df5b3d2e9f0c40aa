// Package metrics exposes Prometheus counters for the server and its modules,
// an Echo middleware for the admin API and a router serving /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the Prometheus registry used by this package
	Registry = prometheus.NewRegistry()

	// AdmissionDecisions counts direct message admission decisions
	AdmissionDecisions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircd",
			Name:      "admission_decisions_total",
			Help:      "Direct message admission decisions by result and deciding rule",
		},
		[]string{"result", "rule"},
	)

	// AllowListGrants counts senders added to a recipient's allow-list
	AllowListGrants = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "ircd",
			Name:      "allowlist_grants_total",
			Help:      "Reply permissions granted to senders",
		},
	)

	// ExtensionDecodeFailures counts rejected serialized extension values
	ExtensionDecodeFailures = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircd",
			Name:      "extension_decode_failures_total",
			Help:      "Malformed extension values by item name",
		},
		[]string{"item"},
	)

	// ZLines counts Z-lines added by modules
	ZLines = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ircd",
			Name:      "zlines_total",
			Help:      "Z-lines added by source",
		},
		[]string{"source"},
	)

	// Users reports connected users by locality
	Users = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ircd",
			Name:      "users",
			Help:      "Users currently known to the server",
		},
		[]string{"locality"},
	)

	// RequestDuration measures admin API latency
	RequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// RequestsTotal counts admin API requests by status code and path
	RequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by status code",
		},
		[]string{"path", "method", "code"},
	)
)

// Middleware returns Echo middleware which records request metrics.
// The route pattern is used as the path label to keep cardinality bounded.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			method := c.Request().Method
			RequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
			RequestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
			return err
		}
	}
}

// Router returns a router serving the registry at path
func Router(path string) *mux.Router {
	if path == "" {
		path = "/metrics"
	}
	r := mux.NewRouter()
	r.Handle(path, promhttp.HandlerFor(
		Registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	)).Methods(http.MethodGet)
	return r
}

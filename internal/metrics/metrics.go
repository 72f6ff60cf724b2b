// Package metrics exposes Prometheus counters for the auth flows and the
// HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	authEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_events_total",
			Help: "Authentication operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	lockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Lockout windows opened after repeated login failures.",
	})

	refreshReuse = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_reuse_total",
		Help: "Presentations of an already rotated or revoked refresh token.",
	})

	mailFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_mail_failures_total",
		Help: "Verification and reset mails that could not be handed off.",
	})

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

	registerOnce sync.Once
)

// Init registers every collector with the default registry.  Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(authEvents, lockouts, refreshReuse, mailFailures,
			httpInFlight, httpRequestsTotal, httpRequestDuration)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuthEvent counts one operation outcome, e.g. ("login", "locked").
func AuthEvent(op, outcome string) {
	authEvents.WithLabelValues(op, outcome).Inc()
}

func LockoutOpened() { lockouts.Inc() }

func RefreshReuse() { refreshReuse.Inc() }

func MailFailed() { mailFailures.Inc() }

// Middleware records RPS, latency and in-flight requests.  Routes are
// labelled by their template (c.Path()) to keep cardinality bounded.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			httpInFlight.Inc()
			defer httpInFlight.Dec()
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if sc, ok := err.(interface{ StatusCode() int }); ok {
					status = sc.StatusCode()
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			code := strconv.Itoa(status)
			httpRequestDuration.WithLabelValues(c.Request().Method, path, code).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(c.Request().Method, path, code).Inc()
			return err
		}
	}
}

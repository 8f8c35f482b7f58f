// Package metrics exposes the server's Prometheus surface: portal port pool
// utilization, active sandbox count, and per-method RPC latency.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PortsFree = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "microsandbox_portal_ports_free",
		Help: "Number of unassigned ports in the portal port pool",
	})

	PortsAssigned = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "microsandbox_portal_ports_assigned",
		Help: "Number of currently assigned portal ports (one per started sandbox not yet stopped)",
	})

	SandboxesRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "microsandbox_sandboxes_running",
			Help: "Number of sandboxes currently reporting running=true, by namespace",
		},
		[]string{"namespace"},
	)

	SandboxStartDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "microsandbox_sandbox_start_duration_seconds",
			Help:    "Time spent in sandbox.start, from request to readiness (or timeout)",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
		},
		[]string{"namespace"},
	)

	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microsandbox_rpc_requests_total",
			Help: "Total JSON-RPC requests handled by the dispatcher",
		},
		[]string{"method", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "microsandbox_rpc_request_duration_seconds",
			Help:    "JSON-RPC request handling latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method"},
	)

	ReplEvalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "microsandbox_repl_eval_duration_seconds",
			Help:    "Time to complete a REPL evaluation, guest-side",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60},
		},
		[]string{"language", "status"},
	)

	CommandRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "microsandbox_command_run_duration_seconds",
			Help:    "Time to complete sandbox.command.run, guest-side",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60},
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		PortsFree,
		PortsAssigned,
		SandboxesRunning,
		SandboxStartDuration,
		RPCRequestsTotal,
		RPCRequestDuration,
		ReplEvalDuration,
		CommandRunDuration,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware instruments every request through an echo server with
// RPCRequestsTotal/RPCRequestDuration, keyed by the JSON-RPC method when the
// dispatcher has recorded one on the context (see SetMethod),
// falling back to the HTTP path for non-RPC routes like /health.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			method, _ := c.Get(methodContextKey).(string)
			if method == "" {
				method = c.Path()
			}

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			RPCRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
			RPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
			return err
		}
	}
}

// methodContextKey is the echo.Context key handlers set to the dispatched
// JSON-RPC method name, so EchoMiddleware can label metrics by it.
const methodContextKey = "rpc_method"

// SetMethod records the dispatched method name for the current request so
// EchoMiddleware labels its metrics by method rather than raw path.
func SetMethod(c echo.Context, method string) {
	c.Set(methodContextKey, method)
}

// PoolReporter is satisfied by portalloc.Allocator.
type PoolReporter interface {
	FreeCount() int
	AssignedCount() int
}

// ReportPool samples a port pool's free/assigned counts into the gauges.
// Intended to be called periodically (see cmd/server's metrics sampler loop).
func ReportPool(p PoolReporter) {
	PortsFree.Set(float64(p.FreeCount()))
	PortsAssigned.Set(float64(p.AssignedCount()))
}

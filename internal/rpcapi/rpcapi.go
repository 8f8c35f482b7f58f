// Package rpcapi implements the RPC Dispatcher: the single
// POST /api/v1/rpc endpoint that routes sandbox.* methods to the
// Lifecycle Manager or, for REPL/command calls, the Portal Forwarder.
package rpcapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/microsandbox/microsandbox/internal/jsonrpc"
	"github.com/microsandbox/microsandbox/internal/lifecycle"
	"github.com/microsandbox/microsandbox/internal/metrics"
	"github.com/microsandbox/microsandbox/internal/portalfwd"
	"github.com/microsandbox/microsandbox/internal/rpcerr"
	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

// Server is the top-level JSON-RPC dispatcher.
type Server struct {
	echo      *echo.Echo
	lifecycle *lifecycle.Manager
	forwarder *portalfwd.Forwarder
}

// New builds a dispatcher over a lifecycle manager and a portal forwarder.
func New(lm *lifecycle.Manager, fwd *portalfwd.Forwarder) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(metrics.EchoMiddleware())

	s := &Server{echo: e, lifecycle: lm, forwarder: fwd}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.POST("/api/v1/rpc", s.handleRPC)
	// Reserved for future subdomain-style sandbox port routing; the core
	// spec only requires it not collide with the RPC surface.
	e.Any("/proxy/*", func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	})

	return s
}

func (s *Server) Echo() *echo.Echo { return s.echo }

type startParams struct {
	Namespace string                 `json:"namespace"`
	Sandbox   string                 `json:"sandbox"`
	Config    rpctypes.SandboxConfig `json:"config"`
}

type stopParams struct {
	Namespace string `json:"namespace"`
	Sandbox   string `json:"sandbox"`
}

type metricsParams struct {
	Namespace string `json:"namespace"`
}

func (s *Server) handleRPC(c echo.Context) error {
	var req jsonrpc.Request
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(nil, jsonrpc.CodeParseError, "invalid JSON"))
	}
	if req.JSONRPC != jsonrpc.Version {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeInvalidRequest, `"jsonrpc" must equal "2.0"`))
	}
	if req.Method == "" {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeInvalidRequest, "missing method"))
	}

	metrics.SetMethod(c, req.Method)

	switch req.Method {
	case "sandbox.start":
		return s.handleStart(c, req)
	case "sandbox.stop":
		return s.handleStop(c, req)
	case "sandbox.metrics.get":
		return s.handleMetrics(c, req)
	case "sandbox.repl.run", "sandbox.command.run":
		return s.handleForward(c, req)
	default:
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeMethodNotFound, "unknown method "+req.Method))
	}
}

func (s *Server) handleStart(c echo.Context, req jsonrpc.Request) error {
	var params startParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeInvalidParams, err.Error()))
	}

	start := time.Now()
	result, err := s.lifecycle.Start(c.Request().Context(), params.Namespace, params.Sandbox, params.Config)
	metrics.SandboxStartDuration.WithLabelValues(params.Namespace).Observe(time.Since(start).Seconds())
	if err != nil {
		return c.JSON(http.StatusOK, errResponse(req.ID, err))
	}
	return c.JSON(http.StatusOK, jsonrpc.Result(req.ID, result))
}

func (s *Server) handleStop(c echo.Context, req jsonrpc.Request) error {
	var params stopParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeInvalidParams, err.Error()))
	}

	message, err := s.lifecycle.Stop(params.Namespace, params.Sandbox)
	if err != nil {
		return c.JSON(http.StatusOK, errResponse(req.ID, err))
	}
	return c.JSON(http.StatusOK, jsonrpc.Result(req.ID, map[string]string{"message": message}))
}

func (s *Server) handleMetrics(c echo.Context, req jsonrpc.Request) error {
	var params metricsParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeInvalidParams, err.Error()))
	}

	records, err := s.lifecycle.Metrics(params.Namespace)
	if err != nil {
		return c.JSON(http.StatusOK, errResponse(req.ID, err))
	}
	reportRunningCounts(records)
	return c.JSON(http.StatusOK, jsonrpc.Result(req.ID, records))
}

// handleForward covers sandbox.repl.run and sandbox.command.run: both
// require namespace/sandbox in params to look up the portal port, then
// relay the original payload unchanged.
func (s *Server) handleForward(c echo.Context, req jsonrpc.Request) error {
	var target stopParams // {namespace, sandbox} is the common shape both forwarded methods need
	if err := json.Unmarshal(req.Params, &target); err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeInvalidParams, err.Error()))
	}
	if target.Namespace == "" || target.Sandbox == "" {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeInvalidParams, "params must include namespace and sandbox"))
	}

	port, err := s.lifecycle.PortalPort(target.Namespace, target.Sandbox)
	if err != nil {
		return c.JSON(http.StatusOK, errResponse(req.ID, err))
	}

	ctx := c.Request().Context()
	if err := s.forwarder.WaitReachable(ctx, port); err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeServerError, "portal unreachable"))
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeServerError, err.Error()))
	}
	respBody, err := s.forwarder.Forward(ctx, port, raw)
	if err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeServerError, err.Error()))
	}

	return c.JSONBlob(http.StatusOK, respBody)
}

// reportRunningCounts updates the per-namespace running-sandbox gauge from
// a metrics snapshot, so a sandbox.metrics.get call also refreshes the
// Prometheus view rather than leaving it to the pool sampler alone.
func reportRunningCounts(records []rpctypes.SandboxRecord) {
	counts := make(map[string]int)
	for _, r := range records {
		if r.Running {
			counts[r.Namespace]++
		}
	}
	for ns, n := range counts {
		metrics.SandboxesRunning.WithLabelValues(ns).Set(float64(n))
	}
}

// errResponse maps a classified error to its JSON-RPC wire shape: only
// Validation gets the -32602 family, every other kind becomes -32000 with
// a descriptive message, per the dispatcher's error-mapping rule.
func errResponse(id json.RawMessage, err error) jsonrpc.Response {
	if rpcerr.KindOf(err) == rpcerr.Validation {
		return jsonrpc.Fail(id, jsonrpc.CodeInvalidParams, err.Error())
	}
	return jsonrpc.Fail(id, jsonrpc.CodeServerError, err.Error())
}

// Shutdown gracefully stops the HTTP listener within the grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

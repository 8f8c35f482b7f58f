// Package portalrpc implements the portal: the JSON-RPC server that runs
// inside a sandbox and exposes REPL evaluation and command execution to
// the host's Portal Forwarder.
package portalrpc

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/microsandbox/microsandbox/internal/cmdrun"
	"github.com/microsandbox/microsandbox/internal/jsonrpc"
	"github.com/microsandbox/microsandbox/internal/metrics"
	"github.com/microsandbox/microsandbox/internal/replengine"
	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

// Server is the in-guest JSON-RPC portal.
type Server struct {
	echo    *echo.Echo
	reactor *replengine.Reactor
}

// New builds a portal server over a REPL reactor.
func New(reactor *replengine.Reactor) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, reactor: reactor}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.POST("/api/v1/rpc", s.handleRPC)

	return s
}

// Serve starts the portal's HTTP listener. It blocks until the listener is
// closed.
func (s *Server) Serve(addr string) error {
	return s.echo.Start(addr)
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.echo.Close()
}

type replRunParams struct {
	Language rpctypes.Language `json:"language"`
	Code     string            `json:"code"`
	ID       string            `json:"id,omitempty"`
	Timeout  float64           `json:"timeout,omitempty"` // seconds
}

type commandRunParams struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Timeout float64           `json:"timeout,omitempty"` // seconds
	TTY     bool              `json:"tty,omitempty"`
	Cols    int               `json:"cols,omitempty"`
	Rows    int               `json:"rows,omitempty"`
}

func (s *Server) handleRPC(c echo.Context) error {
	var req jsonrpc.Request
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(nil, jsonrpc.CodeParseError, "invalid JSON"))
	}
	if !req.Valid() {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeInvalidRequest, "malformed JSON-RPC request"))
	}

	switch req.Method {
	case "sandbox.repl.run":
		return s.replRun(c, req)
	case "sandbox.command.run":
		return s.commandRun(c, req)
	default:
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeMethodNotFound, "unknown method "+req.Method))
	}
}

func (s *Server) replRun(c echo.Context, req jsonrpc.Request) error {
	var params replRunParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeInvalidParams, err.Error()))
	}

	var timeout time.Duration
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout * float64(time.Second))
	}

	id := params.ID
	if id == "" {
		id = uuid.New().String()
	}

	start := time.Now()
	result, err := s.reactor.Eval(c.Request().Context(), params.Language, id, params.Code, timeout)
	status := "ok"
	if err != nil || result.HasError {
		status = "error"
	}
	metrics.ReplEvalDuration.WithLabelValues(string(params.Language), status).Observe(time.Since(start).Seconds())
	if err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeServerError, err.Error()))
	}
	result.Language = params.Language
	return c.JSON(http.StatusOK, jsonrpc.Result(req.ID, result))
}

func (s *Server) commandRun(c echo.Context, req jsonrpc.Request) error {
	var params commandRunParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeInvalidParams, err.Error()))
	}

	var timeout time.Duration
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout * float64(time.Second))
	}

	start := time.Now()
	result, err := cmdrun.Run(c.Request().Context(), cmdrun.Request{
		Command: params.Command,
		Args:    params.Args,
		Env:     params.Env,
		Timeout: timeout,
		TTY:     params.TTY,
		Cols:    params.Cols,
		Rows:    params.Rows,
	})
	status := "ok"
	if err != nil || (result != nil && result.ExitCode != 0) {
		status = "error"
	}
	metrics.CommandRunDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		return c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.CodeServerError, err.Error()))
	}
	return c.JSON(http.StatusOK, jsonrpc.Result(req.ID, result))
}


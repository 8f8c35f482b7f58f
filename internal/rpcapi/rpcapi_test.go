package rpcapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/microsandbox/microsandbox/internal/jsonrpc"
	"github.com/microsandbox/microsandbox/internal/lifecycle"
	"github.com/microsandbox/microsandbox/internal/nsconfig"
	"github.com/microsandbox/microsandbox/internal/portalfwd"
	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := nsconfig.New(t.TempDir())
	lm := lifecycle.New(store, lifecycle.Options{
		PortMin: 6000, PortMax: 6010,
		VMMBin:                "/bin/true",
		ReadinessTimeoutReuse: 30 * time.Millisecond,
		ReadinessTimeoutPull:  30 * time.Millisecond,
	})
	return New(lm, portalfwd.New(nil))
}

func doRPC(t *testing.T, s *Server, method string, params interface{}) (int, jsonrpc.Response) {
	t.Helper()
	paramsJSON, _ := json.Marshal(params)
	reqBody, _ := json.Marshal(jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: method, Params: paramsJSON, ID: json.RawMessage(`1`)})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rpc", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	var resp jsonrpc.Response
	json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec.Code, resp
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestProxyEndpointReturns404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/proxy/ns/sb/whatever", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRejectsWrongJSONRPCVersion(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]interface{}{"jsonrpc": "1.0", "method": "sandbox.start", "id": 1})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	var resp jsonrpc.Response
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidRequest {
		t.Errorf("expected invalid-request error, got %+v", resp.Error)
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	_, resp := doRPC(t, s, "sandbox.bogus", struct{}{})
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeMethodNotFound {
		t.Errorf("expected method-not-found error, got %+v", resp.Error)
	}
}

func TestStartValidationErrorMapsTo32602(t *testing.T) {
	s := newTestServer(t)
	_, resp := doRPC(t, s, "sandbox.start", startParams{Namespace: "ns1", Sandbox: "sb1"})
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidParams {
		t.Errorf("expected invalid-params error for missing image, got %+v", resp.Error)
	}
}

func TestStartThenStopRoundTrip(t *testing.T) {
	s := newTestServer(t)
	_, resp := doRPC(t, s, "sandbox.start", startParams{
		Namespace: "ns1", Sandbox: "sb1",
		Config: rpctypes.SandboxConfig{Image: "alpine:latest", Exec: "/bin/true"},
	})
	if resp.Error != nil {
		t.Fatalf("unexpected start error: %+v", resp.Error)
	}

	_, stopResp := doRPC(t, s, "sandbox.stop", stopParams{Namespace: "ns1", Sandbox: "sb1"})
	if stopResp.Error != nil {
		t.Fatalf("unexpected stop error: %+v", stopResp.Error)
	}
}

func TestMetricsUnknownNamespaceIsEmpty(t *testing.T) {
	s := newTestServer(t)
	_, resp := doRPC(t, s, "sandbox.metrics.get", metricsParams{Namespace: "nope"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result != nil {
		if records, ok := resp.Result.([]interface{}); !ok || len(records) != 0 {
			t.Errorf("expected empty list, got %+v", resp.Result)
		}
	}
}

func TestForwardMissingParamsIsInvalid(t *testing.T) {
	s := newTestServer(t)
	_, resp := doRPC(t, s, "sandbox.repl.run", map[string]string{})
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidParams {
		t.Errorf("expected invalid-params error, got %+v", resp.Error)
	}
}

func TestForwardUnknownSandboxIsServerError(t *testing.T) {
	s := newTestServer(t)
	_, resp := doRPC(t, s, "sandbox.repl.run", map[string]string{"namespace": "ns1", "sandbox": "nope"})
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeServerError {
		t.Errorf("expected server error for unknown sandbox, got %+v", resp.Error)
	}
}

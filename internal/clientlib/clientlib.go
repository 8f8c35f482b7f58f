// Package clientlib is a small JSON-RPC client for the microsandbox server,
// used by msbxctl.
package clientlib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/microsandbox/microsandbox/internal/jsonrpc"
	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

// Client calls a microsandbox server's POST /api/v1/rpc endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client against baseURL (e.g. "http://127.0.0.1:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 3 * time.Minute},
	}
}

// Call issues a single JSON-RPC request and decodes result into out (a
// pointer), or returns an error built from the response's error object.
func (c *Client) Call(ctx context.Context, method string, params, out interface{}) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	reqBody, err := json.Marshal(jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		Method:  method,
		Params:  paramsJSON,
		ID:      json.RawMessage(`1`),
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/rpc", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp jsonrpc.Response
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s (code %d)", rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if out == nil {
		return nil
	}

	resultJSON, err := json.Marshal(rpcResp.Result)
	if err != nil {
		return fmt.Errorf("re-marshal result: %w", err)
	}
	if err := json.Unmarshal(resultJSON, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// Start calls sandbox.start.
func (c *Client) Start(ctx context.Context, namespace, sandbox string, cfg rpctypes.SandboxConfig) (*StartResult, error) {
	var result StartResult
	err := c.Call(ctx, "sandbox.start", map[string]interface{}{
		"namespace": namespace,
		"sandbox":   sandbox,
		"config":    cfg,
	}, &result)
	return &result, err
}

// StartResult mirrors lifecycle.StartResult without importing the server's
// internal package.
type StartResult struct {
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

// Stop calls sandbox.stop.
func (c *Client) Stop(ctx context.Context, namespace, sandbox string) (string, error) {
	var result struct {
		Message string `json:"message"`
	}
	err := c.Call(ctx, "sandbox.stop", map[string]string{
		"namespace": namespace,
		"sandbox":   sandbox,
	}, &result)
	return result.Message, err
}

// Metrics calls sandbox.metrics.get. namespace may be "*" for every namespace.
func (c *Client) Metrics(ctx context.Context, namespace string) ([]rpctypes.SandboxRecord, error) {
	var records []rpctypes.SandboxRecord
	err := c.Call(ctx, "sandbox.metrics.get", map[string]string{"namespace": namespace}, &records)
	return records, err
}

// ReplRun calls sandbox.repl.run, forwarded by the server to the sandbox's portal.
func (c *Client) ReplRun(ctx context.Context, namespace, sandbox string, language rpctypes.Language, code string) (*rpctypes.EvalResult, error) {
	var result rpctypes.EvalResult
	err := c.Call(ctx, "sandbox.repl.run", map[string]interface{}{
		"namespace": namespace,
		"sandbox":   sandbox,
		"language":  language,
		"code":      code,
	}, &result)
	return &result, err
}

// CommandRun calls sandbox.command.run, forwarded by the server to the sandbox's portal.
func (c *Client) CommandRun(ctx context.Context, namespace, sandbox, command string, args []string) (*rpctypes.ProcessResult, error) {
	var result rpctypes.ProcessResult
	err := c.Call(ctx, "sandbox.command.run", map[string]interface{}{
		"namespace": namespace,
		"sandbox":   sandbox,
		"command":   command,
		"args":      args,
	}, &result)
	return &result, err
}

// Package portalfwd implements the Portal Forwarder: it waits for a
// sandbox's in-guest portal to become reachable, then relays
// sandbox.repl.run / sandbox.command.run calls to it unchanged.
package portalfwd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/microsandbox/microsandbox/internal/rpcerr"
)

// probeTimeout is the per-attempt HEAD request timeout.
const probeTimeout = 50 * time.Millisecond

// maxProbeAttempts bounds how many times the forwarder polls for
// reachability before giving up.
const maxProbeAttempts = 10000

// Forwarder relays JSON-RPC payloads to a portal once it's reachable.
type Forwarder struct {
	client *http.Client
}

// New creates a Forwarder. client, if nil, defaults to a client whose
// per-request timeout is set per call (probes use probeTimeout, forwarded
// calls use the caller's context deadline).
func New(client *http.Client) *Forwarder {
	if client == nil {
		client = &http.Client{}
	}
	return &Forwarder{client: client}
}

func portalURL(hostPort int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/api/v1/rpc", hostPort)
}

// WaitReachable sends HEAD requests to the portal root until any HTTP
// response (including 4xx/5xx) is observed, or the attempt bound is
// exhausted. A reachable portal need not be healthy — only listening.
func (f *Forwarder) WaitReachable(ctx context.Context, hostPort int) error {
	root := fmt.Sprintf("http://127.0.0.1:%d/", hostPort)

	for attempt := 0; attempt < maxProbeAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return rpcerr.Wrap(rpcerr.Timeout, "portal reachability probe", ctx.Err())
		default:
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, root, nil)
		if err != nil {
			cancel()
			return rpcerr.Backendf(err, "build probe request")
		}
		resp, err := f.client.Do(req)
		cancel()
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(probeTimeout)
	}
	return rpcerr.Backendf(nil, "portal unreachable after %d attempts", maxProbeAttempts)
}

// Forward POSTs a JSON-RPC payload unchanged to the portal and returns its
// response body verbatim, or an error describing a non-success status.
func (f *Forwarder) Forward(ctx context.Context, hostPort int, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, portalURL(hostPort), bytes.NewReader(payload))
	if err != nil {
		return nil, rpcerr.Backendf(err, "build forward request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, rpcerr.Backendf(err, "portal unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rpcerr.Backendf(err, "read portal response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, rpcerr.Backendf(nil, "portal returned %s: %s", resp.Status, string(body))
	}
	return body, nil
}

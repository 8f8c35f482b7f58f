package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/microsandbox/microsandbox/internal/nsconfig"
	"github.com/microsandbox/microsandbox/internal/rpcerr"
	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store := nsconfig.New(t.TempDir())
	return New(store, Options{
		PortMin:               6000,
		PortMax:               6001,
		VMMBin:                "/bin/true",
		ReadinessTimeoutReuse: 50 * time.Millisecond,
		ReadinessTimeoutPull:  50 * time.Millisecond,
	})
}

func TestStartRequiresImage(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Start(context.Background(), "ns1", "sb1", rpctypes.SandboxConfig{Exec: "/bin/true"})
	if rpcerr.KindOf(err) != rpcerr.Validation {
		t.Errorf("expected Validation kind, got %v (%v)", rpcerr.KindOf(err), err)
	}
}

func TestStartRequiresEntrypoint(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Start(context.Background(), "ns1", "sb1", rpctypes.SandboxConfig{Image: "alpine:latest"})
	if rpcerr.KindOf(err) != rpcerr.Validation {
		t.Errorf("expected Validation kind, got %v (%v)", rpcerr.KindOf(err), err)
	}
}

func TestStartRejectsBadNames(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Start(context.Background(), "*", "sb1", rpctypes.SandboxConfig{Image: "alpine:latest", Exec: "/bin/true"})
	if rpcerr.KindOf(err) != rpcerr.Validation {
		t.Errorf("expected Validation kind for wildcard namespace, got %v", rpcerr.KindOf(err))
	}
}

func TestStartAssignsPortAndWarnsOnTimeout(t *testing.T) {
	m := newTestManager(t)
	result, err := m.Start(context.Background(), "ns1", "sb1", rpctypes.SandboxConfig{Image: "alpine:latest", Exec: "/bin/true"})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	// /bin/true exits immediately, so the readiness poll never observes
	// running=true within the short test timeout; Start must still succeed.
	if result.Warning == "" {
		t.Error("expected a readiness warning since the stub VMM exits immediately")
	}

	port, err := m.PortalPort("ns1", "sb1")
	if err != nil {
		t.Fatalf("PortalPort() error: %v", err)
	}
	if port < 6000 || port > 6001 {
		t.Errorf("port %d out of configured range", port)
	}
}

func TestStopReleasesPortUnconditionally(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Start(context.Background(), "ns1", "sb1", rpctypes.SandboxConfig{Image: "alpine:latest", Exec: "/bin/true"}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if _, err := m.Stop("ns1", "sb1"); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if _, err := m.PortalPort("ns1", "sb1"); err == nil {
		t.Error("expected port to be released after stop")
	}
}

func TestStopTwiceDoesNotFail(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Start(context.Background(), "ns1", "sb1", rpctypes.SandboxConfig{Image: "alpine:latest", Exec: "/bin/true"}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, err := m.Stop("ns1", "sb1"); err != nil {
		t.Fatalf("first Stop() error: %v", err)
	}
	// A second stop against an unrecorded sandbox surfaces as not-found,
	// per the documented resolution of the spec's open question — but it
	// must not panic or release a port a second time.
	if _, err := m.Stop("ns1", "sb1"); rpcerr.KindOf(err) != rpcerr.NotFound {
		t.Errorf("expected NotFound kind on double stop, got %v", rpcerr.KindOf(err))
	}
}

func TestPortExhaustionOneOfTwoStartsFails(t *testing.T) {
	store := nsconfig.New(t.TempDir())
	m := New(store, Options{
		PortMin:               6000,
		PortMax:               6000, // pool size 1
		VMMBin:                "/bin/true",
		ReadinessTimeoutReuse: 20 * time.Millisecond,
	})

	if _, err := m.Start(context.Background(), "ns1", "sb1", rpctypes.SandboxConfig{Image: "alpine:latest", Exec: "/bin/true"}); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	_, err := m.Start(context.Background(), "ns1", "sb2", rpctypes.SandboxConfig{Image: "alpine:latest", Exec: "/bin/true"})
	if rpcerr.KindOf(err) != rpcerr.ResourceExhausted {
		t.Errorf("expected ResourceExhausted kind, got %v", rpcerr.KindOf(err))
	}

	if _, err := m.Stop("ns1", "sb1"); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if _, err := m.Start(context.Background(), "ns1", "sb2", rpctypes.SandboxConfig{Image: "alpine:latest", Exec: "/bin/true"}); err != nil {
		t.Errorf("Start() after release should succeed: %v", err)
	}
}

func TestMetricsWildcardListsRecordedSandbox(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Start(context.Background(), "ns1", "sb1", rpctypes.SandboxConfig{Image: "alpine:latest", Exec: "/bin/true"}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	store2 := nsconfig.New(t.TempDir())
	_ = store2 // separate store, not reachable by m; metrics iterate m's own root only

	records, err := m.Metrics("*")
	if err != nil {
		t.Fatalf("Metrics() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Namespace != "ns1" || records[0].Name != "sb1" {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestMetricsMissingNamespaceIsEmptyNotError(t *testing.T) {
	m := newTestManager(t)
	records, err := m.Metrics("nonexistent")
	if err != nil {
		t.Fatalf("Metrics() error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty result, got %d records", len(records))
	}
}

package portalloc

import (
	"testing"

	"github.com/microsandbox/microsandbox/internal/rpcerr"
)

func TestAssignAndLookup(t *testing.T) {
	a := New(6000, 7000)

	port, err := a.Assign("ns1/sb1")
	if err != nil {
		t.Fatalf("Assign() error: %v", err)
	}
	if port < 6000 || port > 7000 {
		t.Errorf("port %d out of range", port)
	}

	got, err := a.Lookup("ns1/sb1")
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if got != port {
		t.Errorf("expected port %d, got %d", port, got)
	}
}

func TestAssignIdempotent(t *testing.T) {
	a := New(6000, 7000)

	p1, err := a.Assign("ns1/sb1")
	if err != nil {
		t.Fatalf("Assign() error: %v", err)
	}
	p2, err := a.Assign("ns1/sb1")
	if err != nil {
		t.Fatalf("second Assign() error: %v", err)
	}
	if p1 != p2 {
		t.Errorf("expected same port on repeated Assign, got %d and %d", p1, p2)
	}
}

func TestLookupNotFound(t *testing.T) {
	a := New(6000, 7000)
	_, err := a.Lookup("missing")
	if rpcerr.KindOf(err) != rpcerr.NotFound {
		t.Errorf("expected NotFound kind, got %v", rpcerr.KindOf(err))
	}
}

func TestReleaseReturnsPortToPool(t *testing.T) {
	a := New(6000, 6000) // pool of size 1

	port, err := a.Assign("ns1/sb1")
	if err != nil {
		t.Fatalf("Assign() error: %v", err)
	}

	a.Release("ns1/sb1")

	if _, err := a.Lookup("ns1/sb1"); err == nil {
		t.Error("expected error after release")
	}

	again, err := a.Assign("ns1/sb2")
	if err != nil {
		t.Fatalf("Assign() after release should succeed: %v", err)
	}
	if again != port {
		t.Errorf("expected the released port %d to be reused, got %d", port, again)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	a := New(6000, 7000)
	a.Release("never-assigned") // must not panic or error
}

func TestPoolExhaustion(t *testing.T) {
	a := New(6000, 6000) // pool of size 1

	if _, err := a.Assign("sb1"); err != nil {
		t.Fatalf("first Assign() error: %v", err)
	}
	_, err := a.Assign("sb2")
	if rpcerr.KindOf(err) != rpcerr.ResourceExhausted {
		t.Errorf("expected ResourceExhausted kind, got %v", rpcerr.KindOf(err))
	}

	a.Release("sb1")
	if _, err := a.Assign("sb2"); err != nil {
		t.Errorf("Assign() should succeed after release: %v", err)
	}
}

func TestFreeAndAssignedCountsPartitionRange(t *testing.T) {
	a := New(6000, 6009) // 10 ports

	for i := 0; i < 5; i++ {
		if _, err := a.Assign(string(rune('a' + i))); err != nil {
			t.Fatalf("Assign() error: %v", err)
		}
	}

	if got, want := a.AssignedCount(), 5; got != want {
		t.Errorf("AssignedCount() = %d, want %d", got, want)
	}
	if got, want := a.FreeCount(), 5; got != want {
		t.Errorf("FreeCount() = %d, want %d", got, want)
	}
}

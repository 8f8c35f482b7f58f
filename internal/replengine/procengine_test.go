package replengine

import (
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

// shEngine exercises ProcessEngine against a plain shell, standing in for
// a real language REPL: `sh` reads commands from stdin and echoes printf
// output exactly the way a Python/Node REPL would forward print calls.
func shEngine() *ProcessEngine {
	spawn := func() *exec.Cmd { return exec.Command("/bin/sh") }
	markerStmt := func(marker string) string { return fmt.Sprintf("printf '%%s\\n' %s", marker) }
	return NewProcessEngine(spawn, markerStmt, nil)
}

func TestProcessEngineEvalRoundTrip(t *testing.T) {
	e := shEngine()
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer e.Shutdown()

	result := e.Eval("1", "echo hello", 2*time.Second)
	if result.Status != rpctypes.EvalCompleted {
		t.Fatalf("expected completed, got %+v", result)
	}
	if strings.TrimSpace(result.Output) != "hello" {
		t.Errorf("unexpected output: %q", result.Output)
	}
}

func TestProcessEngineMarkerNeverForwarded(t *testing.T) {
	e := shEngine()
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer e.Shutdown()

	result := e.Eval("1", "echo a", 2*time.Second)
	if strings.Contains(result.Output, "eoe_") {
		t.Errorf("marker leaked into forwarded output: %q", result.Output)
	}
}

func TestProcessEngineStatePersistsAcrossEvals(t *testing.T) {
	e := shEngine()
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer e.Shutdown()

	e.Eval("1", "X=42", 2*time.Second)
	result := e.Eval("2", "echo $X", 2*time.Second)
	if strings.TrimSpace(result.Output) != "42" {
		t.Errorf("expected shell variable to persist across evals, got %q", result.Output)
	}
}

func TestProcessEngineStderrGoesToError(t *testing.T) {
	e := shEngine()
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer e.Shutdown()

	result := e.Eval("1", "echo out; echo err 1>&2", 2*time.Second)
	if strings.TrimSpace(result.Output) != "out" {
		t.Errorf("expected stdout-only output, got %q", result.Output)
	}
	if strings.TrimSpace(result.Error) != "err" {
		t.Errorf("expected stderr routed to error, got %q", result.Error)
	}
	if !result.HasError {
		t.Errorf("expected has_error=true when stderr is non-empty")
	}
}

func TestProcessEngineErrorOnStderrClassification(t *testing.T) {
	spawn := func() *exec.Cmd { return exec.Command("/bin/sh") }
	markerStmt := func(marker string) string { return fmt.Sprintf("printf '%%s\\n' %s", marker) }
	e := NewProcessEngineWithErrorClassification(spawn, markerStmt, nil, true)
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer e.Shutdown()

	result := e.Eval("1", "echo oops 1>&2", 2*time.Second)
	if result.Status != rpctypes.EvalError {
		t.Errorf("expected status=error when errorOnStderr is set and stderr is non-empty, got %q", result.Status)
	}
	if !result.HasError {
		t.Errorf("expected has_error=true")
	}

	ok := e.Eval("2", "echo fine", 2*time.Second)
	if ok.Status != rpctypes.EvalCompleted {
		t.Errorf("expected status=completed for a clean eval, got %q", ok.Status)
	}
}

func TestTimeoutMessageWholeSeconds(t *testing.T) {
	got := timeoutMessage(2 * time.Second)
	if !strings.Contains(got, "timed out after 2 seconds") {
		t.Errorf("expected whole-seconds wording, got %q", got)
	}
}

func TestProcessEngineTimeout(t *testing.T) {
	e := shEngine()
	if err := e.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	defer e.Shutdown()

	result := e.Eval("1", "sleep 0.2", 50*time.Millisecond)
	if result.Status != rpctypes.EvalTimeout {
		t.Fatalf("expected timeout, got %+v", result)
	}

	// The REPL is left running rather than killed: the queued sleep still
	// finishes on its own, after which the shell is free to run the next
	// eval's command.
	result2 := e.Eval("2", "echo still-alive", 2*time.Second)
	if strings.TrimSpace(result2.Output) != "still-alive" {
		t.Errorf("expected REPL to remain usable after a timeout, got %+v", result2)
	}
}

package replengine

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

const markerAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newMarker generates an end-of-execution marker: "eoe_" followed by at
// least 20 random alphanumerics, unique enough that user code could never
// print it by accident.
func newMarker() string {
	const n = 24
	b := make([]byte, n)
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable on this host;
		// fall back to a fixed-but-still-unlikely marker rather than panic.
		for i := range buf {
			buf[i] = byte(i)
		}
	}
	for i, v := range buf {
		b[i] = markerAlphabet[int(v)%len(markerAlphabet)]
	}
	return "eoe_" + string(b)
}

// ProcessEngine is a sub-engine backed by a long-lived subprocess whose
// stdin accepts code and whose stdout/stderr are scanned line by line for
// the end-of-execution marker. Python and Node are both process engines;
// only the spawn command, the marker-printing statement, and the prompt
// filter differ between them.
type ProcessEngine struct {
	spawn         func() *exec.Cmd
	markerStmt    func(marker string) string
	ignoreLine    func(line string) bool
	errorOnStderr bool
	pollInterval  time.Duration

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	lines   chan rpctypes.Line
	current *execSlot
}

type execSlot struct {
	marker    string
	completed bool
	lines     []rpctypes.Line
	mu        sync.Mutex
}

// NewProcessEngine constructs a process-backed sub-engine. spawn builds a
// fresh *exec.Cmd each time Initialize is called (so a crashed REPL could,
// in principle, be restarted). markerStmt renders the language-specific
// statement that prints a marker to stdout. ignoreLine filters REPL prompt
// artifacts (e.g. Node's "> ") that aren't real output.
func NewProcessEngine(spawn func() *exec.Cmd, markerStmt func(string) string, ignoreLine func(string) bool) *ProcessEngine {
	return &ProcessEngine{
		spawn:        spawn,
		markerStmt:   markerStmt,
		ignoreLine:   ignoreLine,
		pollInterval: 50 * time.Millisecond,
	}
}

// NewProcessEngineWithErrorClassification is NewProcessEngine plus
// errorOnStderr: when true, any stderr produced during an eval makes that
// eval terminate with Status: EvalError instead of EvalCompleted. The Rust
// engine needs this — a compile/eval error from evcxr must surface as an
// Error terminal message (spec §4.6), not a completed eval with stray
// stderr text.
func NewProcessEngineWithErrorClassification(spawn func() *exec.Cmd, markerStmt func(string) string, ignoreLine func(string) bool, errorOnStderr bool) *ProcessEngine {
	e := NewProcessEngine(spawn, markerStmt, ignoreLine)
	e.errorOnStderr = errorOnStderr
	return e
}

func (p *ProcessEngine) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := p.spawn()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("repl stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("repl stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("repl stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start repl: %w", err)
	}

	p.cmd = cmd
	p.stdin = stdin
	go p.scan(stdout, rpctypes.StreamStdout)
	go p.scan(stderr, rpctypes.StreamStderr)
	return nil
}

// scan is the output reader: every produced line either completes the
// current execution slot (if it equals the stored marker) or is appended
// to that slot's buffered output.
func (p *ProcessEngine) scan(r io.Reader, stream rpctypes.Stream) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		p.mu.Lock()
		slot := p.current
		p.mu.Unlock()
		if slot == nil {
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == slot.marker {
			slot.mu.Lock()
			slot.completed = true
			slot.mu.Unlock()
			continue
		}
		// A timed-out eval's marker can still be printed once its runaway
		// code finishes; it is dropped rather than forwarded as output of
		// whichever eval is current by then.
		if len(trimmed) == len(slot.marker) && strings.HasPrefix(trimmed, "eoe_") {
			continue
		}
		if p.ignoreLine != nil && p.ignoreLine(line) {
			continue
		}

		slot.mu.Lock()
		slot.lines = append(slot.lines, rpctypes.Line{Stream: stream, Text: line})
		slot.mu.Unlock()
	}
}

// Eval implements the sub-engine eval protocol: mint a marker, append its
// print statement to the submitted code, write it to the REPL's stdin, and
// poll the execution slot until completion or timeout.
func (p *ProcessEngine) Eval(id, code string, timeout time.Duration) rpctypes.EvalResult {
	marker := newMarker()
	slot := &execSlot{marker: marker}

	p.mu.Lock()
	p.current = slot
	stdin := p.stdin
	p.mu.Unlock()

	payload := code + "\n" + p.markerStmt(marker) + "\n"
	if _, err := io.WriteString(stdin, payload); err != nil {
		return rpctypes.EvalResult{ID: id, Status: rpctypes.EvalError, Error: err.Error(), HasError: true}
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		slot.mu.Lock()
		done := slot.completed
		slot.mu.Unlock()
		if done {
			p.mu.Lock()
			p.current = nil
			p.mu.Unlock()
			stdout, stderr := splitLines(slot.lines)
			hasError := stderr != ""
			status := rpctypes.EvalCompleted
			if hasError && p.errorOnStderr {
				status = rpctypes.EvalError
			}
			return rpctypes.EvalResult{
				ID: id, Output: stdout, Error: stderr,
				Status: status, HasError: hasError,
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			// The underlying REPL is left running deliberately: runaway
			// code is superseded by the next eval, not killed mid-flight.
			stdout, _ := splitLines(slot.lines)
			return rpctypes.EvalResult{
				ID: id, Output: stdout, Status: rpctypes.EvalTimeout,
				Error:    timeoutMessage(timeout),
				HasError: true,
			}
		}
		time.Sleep(p.pollInterval)
	}
}

func (p *ProcessEngine) Shutdown() error {
	p.mu.Lock()
	stdin := p.stdin
	cmd := p.cmd
	p.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
		return nil
	case <-time.After(2 * time.Second):
		return cmd.Process.Kill()
	}
}

// timeoutMessage renders the fixed timeout wording in whole seconds; a
// %s/Duration format (e.g. "2s") would not match it.
func timeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("Execution timed out after %d seconds", int(timeout.Seconds()))
}

// splitLines partitions buffered output by stream: stdout lines join into
// the first return value, stderr lines into the second.
func splitLines(lines []rpctypes.Line) (stdout, stderr string) {
	var outBuf, errBuf strings.Builder
	for _, l := range lines {
		if l.Stream == rpctypes.StreamStderr {
			errBuf.WriteString(l.Text)
			errBuf.WriteByte('\n')
		} else {
			outBuf.WriteString(l.Text)
			outBuf.WriteByte('\n')
		}
	}
	return outBuf.String(), errBuf.String()
}

// Package cmdrun implements command execution inside the guest: each call
// spawns an independent subprocess, captures its output, and kills it if it
// outruns a timeout. It carries no state between calls.
package cmdrun

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/creack/pty"

	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

// DefaultTimeout applies when a caller supplies no timeout.
const DefaultTimeout = 60 * time.Second

// defaultCols and defaultRows size a TTY when the caller requests one
// without specifying dimensions.
const (
	defaultCols = 80
	defaultRows = 24
)

// Request describes one command execution.
type Request struct {
	Command string
	Args    []string
	Env     map[string]string
	Cwd     string
	Timeout time.Duration

	// TTY requests the command run behind a pseudo-terminal instead of
	// plain pipes, for programs that behave differently without one
	// (interactive prompts, ANSI output). Cols/Rows default to 80x24.
	TTY        bool
	Cols, Rows int
}

// Run executes cmd as an independent subprocess and waits for it to exit or
// for the timeout to elapse, whichever comes first. A timeout produces a
// ProcessResult with ExitCode 124 rather than an error — the call completed,
// it just didn't finish in time.
func Run(ctx context.Context, req Request) (*rpctypes.ProcessResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := buildArgs(req.Command, req.Args)
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}
	if len(req.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range req.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	var stdout, stderr bytes.Buffer
	var err error
	if req.TTY {
		err = runTTY(cmd, req, &stdout)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err = cmd.Run()
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return &rpctypes.ProcessResult{
			Command:  req.Command,
			Args:     req.Args,
			ExitCode: 124,
			Stdout:   stdout.String(),
			Stderr:   fmt.Sprintf("command timed out after %s", timeout),
		}, nil
	}

	result := &rpctypes.ProcessResult{
		Command: req.Command,
		Args:    req.Args,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("exec %s: %w", req.Command, err)
	}

	return result, nil
}

// runTTY runs cmd behind a pseudo-terminal, combining stdout and stderr
// into one stream the way a real terminal would, and copies everything
// into out until the PTY closes (the child exits) or the run context's
// deadline kills it.
func runTTY(cmd *exec.Cmd, req Request, out *bytes.Buffer) error {
	cols, rows := uint16(req.Cols), uint16(req.Rows)
	if cols == 0 {
		cols = defaultCols
	}
	if rows == 0 {
		rows = defaultRows
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}
	defer ptmx.Close()

	_, copyErr := io.Copy(out, ptmx)
	waitErr := cmd.Wait()
	if waitErr != nil {
		return waitErr
	}
	// A closed PTY master surfaces as a read error once the child exits;
	// that's expected, not a failure of the command itself.
	_ = copyErr
	return nil
}

// buildArgs folds Args into Command when Args is empty and Command itself
// looks like a shell line, mirroring how a caller typically supplies either
// a plain binary+args pair or a single shell string.
func buildArgs(command string, args []string) []string {
	if len(args) > 0 {
		return append([]string{command}, args...)
	}
	if strings.ContainsAny(command, " |;&><") {
		return []string{"/bin/sh", "-c", command}
	}
	return []string{command}
}

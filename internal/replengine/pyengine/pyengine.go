// Package pyengine supplies the Python sub-engine: a long-lived
// `python3 -q -u -i` process with no prompt echo.
package pyengine

import (
	"fmt"
	"os/exec"

	"github.com/microsandbox/microsandbox/internal/replengine"
)

// New spawns Python via the given binary (normally "python3").
func New(bin string) *replengine.ProcessEngine {
	if bin == "" {
		bin = "python3"
	}
	spawn := func() *exec.Cmd {
		return exec.Command(bin, "-q", "-u", "-i", "-c", "import sys; sys.ps1=sys.ps2=''")
	}
	markerStmt := func(marker string) string {
		// A leading newline ensures a half-open multi-line block (e.g. an
		// unclosed paren) is terminated before the marker print runs.
		return fmt.Sprintf("\nprint(%q)", marker)
	}
	return replengine.NewProcessEngine(spawn, markerStmt, nil)
}

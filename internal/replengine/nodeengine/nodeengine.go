// Package nodeengine supplies the Node sub-engine: a long-lived REPL
// started via node's built-in repl module, with prompt artifacts filtered
// out of forwarded output.
package nodeengine

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/microsandbox/microsandbox/internal/replengine"
)

// New spawns Node via the given binary (normally "node").
func New(bin string) *replengine.ProcessEngine {
	if bin == "" {
		bin = "node"
	}
	spawn := func() *exec.Cmd {
		return exec.Command(bin, "-e",
			"require('repl').start({prompt:'', terminal:false, ignoreUndefined:true})")
	}
	markerStmt := func(marker string) string {
		return fmt.Sprintf("console.log(%q)", marker)
	}
	ignorePrompt := func(line string) bool {
		return strings.HasPrefix(line, ">") || strings.HasPrefix(line, "..")
	}
	return replengine.NewProcessEngine(spawn, markerStmt, ignorePrompt)
}

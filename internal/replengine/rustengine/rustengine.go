// Package rustengine supplies the Rust sub-engine. There is no in-process,
// embeddable Rust evaluator available (evcxr itself shells out to rustc
// per eval); this runs evcxr as a subprocess through the same ProcessEngine
// as Python and Node, rather than the dedicated in-process worker thread
// described for an idealized implementation. The reactor's per-language
// consumer goroutine still gives it the dedicated, non-shared execution
// lane the sub-engine contract calls for. Unlike Python/Node, a compile or
// evaluation error from evcxr must surface as an Error terminal message
// rather than a completed eval with stray stderr text, so this engine
// enables stderr-based error classification.
package rustengine

import (
	"fmt"
	"os/exec"

	"github.com/microsandbox/microsandbox/internal/replengine"
)

// New spawns the Rust REPL via the given binary (normally "evcxr").
func New(bin string) *replengine.ProcessEngine {
	if bin == "" {
		bin = "evcxr"
	}
	spawn := func() *exec.Cmd {
		return exec.Command(bin)
	}
	markerStmt := func(marker string) string {
		return fmt.Sprintf("println!(%q);", marker)
	}
	return replengine.NewProcessEngineWithErrorClassification(spawn, markerStmt, nil, true)
}

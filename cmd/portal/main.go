// msb-portal is the in-guest JSON-RPC server that runs inside every
// sandbox microVM. It exposes sandbox.repl.run and sandbox.command.run,
// backed by the REPL Engine Reactor and the command-execution path.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/microsandbox/microsandbox/internal/portalrpc"
	"github.com/microsandbox/microsandbox/internal/replengine"
	"github.com/microsandbox/microsandbox/internal/replengine/nodeengine"
	"github.com/microsandbox/microsandbox/internal/replengine/pyengine"
	"github.com/microsandbox/microsandbox/internal/replengine/rustengine"
	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

const version = "0.1.0"

// gracePeriod bounds how long Shutdown waits for in-flight evaluations to
// finish before the sub-engines are forcibly torn down.
const gracePeriod = 5 * time.Second

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Printf("msb-portal %s starting", version)

	addr := envOrDefault("MSB_PORTAL_ADDR", ":4444")

	reactor := replengine.New(map[rpctypes.Language]replengine.Engine{
		rpctypes.LanguagePython: pyengine.New(envOrDefault("MSB_PYTHON_BIN", "python3")),
		rpctypes.LanguageNode:   nodeengine.New(envOrDefault("MSB_NODE_BIN", "node")),
		rpctypes.LanguageRust:   rustengine.New(envOrDefault("MSB_EVCXR_BIN", "evcxr")),
	})

	srv := portalrpc.New(reactor)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Printf("msb-portal: received %v, shutting down", sig)
		reactor.Shutdown(gracePeriod)
		srv.Close()
		os.Exit(0)
	}()

	log.Printf("msb-portal: listening on %s", addr)
	if err := srv.Serve(addr); err != nil {
		log.Fatalf("msb-portal: serve failed: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

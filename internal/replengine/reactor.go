// Package replengine implements the REPL Engine Reactor: a single consumer
// per language that sequences evaluations so each language's REPL state
// stays coherent, while different languages proceed independently.
package replengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

// intakeCapacity bounds how many evaluations may be queued before Eval
// blocks the caller.
const intakeCapacity = 100

// Engine is the sub-engine contract every language implementation
// satisfies: a long-lived REPL plus a single in-flight evaluation at a
// time. Eval is expected to block until the evaluation completes or times
// out; it owns the end-of-execution marker protocol internally.
type Engine interface {
	Initialize() error
	Eval(id, code string, timeout time.Duration) rpctypes.EvalResult
	Shutdown() error
}

type job struct {
	language rpctypes.Language
	id       string
	code     string
	timeout  time.Duration
	resp     chan rpctypes.EvalResult
}

// Reactor routes evaluations to one goroutine per language, each draining
// its own queue in order — FIFO within a language, independent across
// languages.
type Reactor struct {
	engines map[rpctypes.Language]Engine
	queues  map[rpctypes.Language]chan job
	intake  chan job
	wg      sync.WaitGroup

	// sendMu guards against sending on intake concurrently with Shutdown
	// closing it: every Eval holds the read lock for the duration of its
	// send, Shutdown takes the write lock before closing.
	sendMu sync.RWMutex
	closed bool

	mu          sync.Mutex
	initialized map[rpctypes.Language]bool
}

// New starts a Reactor over the supplied sub-engines. Engines initialize
// lazily on first use, not at construction.
func New(engines map[rpctypes.Language]Engine) *Reactor {
	r := &Reactor{
		engines:     engines,
		queues:      make(map[rpctypes.Language]chan job),
		intake:      make(chan job, intakeCapacity),
		initialized: make(map[rpctypes.Language]bool),
	}
	for lang := range engines {
		q := make(chan job, intakeCapacity)
		r.queues[lang] = q
		r.wg.Add(1)
		go r.consume(lang, q)
	}
	go r.dispatch()
	return r
}

func (r *Reactor) dispatch() {
	defer func() {
		for _, q := range r.queues {
			close(q)
		}
	}()
	for j := range r.intake {
		q, ok := r.queues[j.language]
		if !ok {
			j.resp <- rpctypes.EvalResult{
				ID: j.id, Language: j.language, Status: rpctypes.EvalError,
				Error: fmt.Sprintf("unsupported language %q", j.language), HasError: true,
			}
			continue
		}
		q <- j
	}
}

func (r *Reactor) consume(lang rpctypes.Language, q chan job) {
	defer r.wg.Done()
	engine := r.engines[lang]
	for j := range q {
		if err := r.ensureInitialized(lang, engine); err != nil {
			j.resp <- rpctypes.EvalResult{ID: j.id, Language: lang, Status: rpctypes.EvalError, Error: err.Error(), HasError: true}
			continue
		}
		j.resp <- engine.Eval(j.id, j.code, j.timeout)
	}
}

func (r *Reactor) ensureInitialized(lang rpctypes.Language, engine Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized[lang] {
		return nil
	}
	if err := engine.Initialize(); err != nil {
		return err
	}
	r.initialized[lang] = true
	return nil
}

// Eval submits one evaluation and blocks for its result. A context
// cancellation while the evaluation is in flight does not stop it — the
// reactor runs it to completion or its own timeout regardless, per the
// forwarded-eval cancellation rule; Eval simply stops waiting and the
// result, once produced, is discarded by the consumer goroutine moving on
// to its next queued job.
func (r *Reactor) Eval(ctx context.Context, lang rpctypes.Language, id, code string, timeout time.Duration) (rpctypes.EvalResult, error) {
	resp := make(chan rpctypes.EvalResult, 1)

	r.sendMu.RLock()
	if r.closed {
		r.sendMu.RUnlock()
		return rpctypes.EvalResult{}, fmt.Errorf("reactor is shut down")
	}
	select {
	case r.intake <- job{language: lang, id: id, code: code, timeout: timeout, resp: resp}:
		r.sendMu.RUnlock()
	case <-ctx.Done():
		r.sendMu.RUnlock()
		return rpctypes.EvalResult{}, ctx.Err()
	}

	select {
	case result := <-resp:
		return result, nil
	case <-ctx.Done():
		return rpctypes.EvalResult{}, ctx.Err()
	}
}

// Shutdown stops accepting new work and waits up to grace for every
// sub-engine to drain before forcing their shutdown.
func (r *Reactor) Shutdown(grace time.Duration) {
	r.sendMu.Lock()
	r.closed = true
	close(r.intake)
	r.sendMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}

	for _, e := range r.engines {
		e.Shutdown()
	}
}

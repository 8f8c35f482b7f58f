package replengine

import (
	"context"
	"testing"
	"time"

	"github.com/microsandbox/microsandbox/internal/rpctypes"
)

// fakeEngine is a test double that appends to a shared order slice so
// tests can assert dispatch ordering without spawning real interpreters.
type fakeEngine struct {
	delay  time.Duration
	order  *[]string
	initMu chan struct{}
}

func newFakeEngine(order *[]string) *fakeEngine {
	return &fakeEngine{order: order, initMu: make(chan struct{}, 1)}
}

func (f *fakeEngine) Initialize() error { return nil }

func (f *fakeEngine) Eval(id, code string, timeout time.Duration) rpctypes.EvalResult {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	*f.order = append(*f.order, id)
	return rpctypes.EvalResult{ID: id, Output: code, Status: rpctypes.EvalCompleted}
}

func (f *fakeEngine) Shutdown() error { return nil }

func TestEvalReturnsEngineOutput(t *testing.T) {
	var order []string
	r := New(map[rpctypes.Language]Engine{rpctypes.LanguagePython: newFakeEngine(&order)})
	defer r.Shutdown(time.Second)

	result, err := r.Eval(context.Background(), rpctypes.LanguagePython, "1", "print(1)", 0)
	if err != nil {
		t.Fatalf("Eval() error: %v", err)
	}
	if result.Output != "print(1)" || result.Status != rpctypes.EvalCompleted {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestEvalUnsupportedLanguage(t *testing.T) {
	r := New(map[rpctypes.Language]Engine{})
	defer r.Shutdown(time.Second)

	result, err := r.Eval(context.Background(), rpctypes.LanguageRust, "1", "1+1", 0)
	if err != nil {
		t.Fatalf("Eval() error: %v", err)
	}
	if !result.HasError {
		t.Error("expected HasError for unsupported language")
	}
}

func TestEvalPerLanguageFIFO(t *testing.T) {
	var order []string
	engine := newFakeEngine(&order)
	engine.delay = 10 * time.Millisecond
	r := New(map[rpctypes.Language]Engine{rpctypes.LanguagePython: engine})
	defer r.Shutdown(time.Second)

	done := make(chan struct{}, 3)
	for _, id := range []string{"a", "b", "c"} {
		go func(id string) {
			r.Eval(context.Background(), rpctypes.LanguagePython, id, id, 0)
			done <- struct{}{}
		}(id)
		time.Sleep(2 * time.Millisecond) // stagger submission to fix send order
	}
	for i := 0; i < 3; i++ {
		<-done
	}

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("expected FIFO order [a b c], got %v", order)
	}
}

func TestEvalCrossLanguageIndependence(t *testing.T) {
	var pyOrder, nodeOrder []string
	pyEngine := newFakeEngine(&pyOrder)
	pyEngine.delay = 100 * time.Millisecond
	nodeEngine := newFakeEngine(&nodeOrder)

	r := New(map[rpctypes.Language]Engine{
		rpctypes.LanguagePython: pyEngine,
		rpctypes.LanguageNode:   nodeEngine,
	})
	defer r.Shutdown(time.Second)

	go r.Eval(context.Background(), rpctypes.LanguagePython, "slow", "x", 0)
	time.Sleep(5 * time.Millisecond)

	start := time.Now()
	if _, err := r.Eval(context.Background(), rpctypes.LanguageNode, "fast", "y", 0); err != nil {
		t.Fatalf("Eval() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("node eval was blocked by the slow python eval: took %s", elapsed)
	}
}

func TestShutdownStopsAcceptingWork(t *testing.T) {
	var order []string
	r := New(map[rpctypes.Language]Engine{rpctypes.LanguagePython: newFakeEngine(&order)})
	r.Shutdown(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := r.Eval(ctx, rpctypes.LanguagePython, "1", "1", 0); err == nil {
		t.Error("expected Eval after Shutdown to fail or time out")
	}
}

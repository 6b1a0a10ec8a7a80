package pagelet

import (
	"net/http/httptest"
	"sync"
	"testing"
)

func TestPoolReuseResetsInstance(t *testing.T) {
	def := MustNormalize(Module{Name: "a", View: "a.html", Mode: ModePipeline})
	pool := NewPool(2)

	in := pool.Acquire(def)
	in.Bind(httptest.NewRequest("GET", "/", nil), httptest.NewRecorder(), map[string]string{"id": "1"})
	in.SetAuthorized(true)
	in.SetMode(ModeSync)
	in.SetData("payload")
	in.SetOrdinal(3)
	in.SetBootstrap(&Bootstrap{Expected: 2})
	pool.Release(in)

	again := pool.Acquire(def)
	if again != in {
		t.Fatal("expected the released instance to be reused")
	}
	if again.Request() != nil || again.Response() != nil || again.Params() != nil {
		t.Error("request binding survived release")
	}
	if again.Authorized() || again.Data() != nil || again.Ordinal() != 0 || again.Bootstrap() != nil {
		t.Error("per-request fields survived release")
	}
	if again.Mode() != ModePipeline {
		t.Errorf("Mode = %q, want definition mode", again.Mode())
	}
	if again.State() != StateCreated {
		t.Errorf("State = %v, want created", again.State())
	}

	st := pool.Stats()
	if st.Allocated != 1 || st.Reused != 1 || st.Released != 1 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestPoolCapacity(t *testing.T) {
	def := MustNormalize(Module{Name: "a", View: "a.html"})
	pool := NewPool(2)

	var ins []*Instance
	for i := 0; i < 3; i++ {
		ins = append(ins, pool.Acquire(def))
	}
	for _, in := range ins {
		pool.Release(in)
	}

	if got := pool.Idle(def); got != 2 {
		t.Errorf("Idle = %d, want 2", got)
	}
	if got := pool.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestPoolDoubleRelease(t *testing.T) {
	def := MustNormalize(Module{Name: "a", View: "a.html"})
	pool := NewPool(4)

	in := pool.Acquire(def)
	pool.Release(in)
	pool.Release(in)
	pool.Release(nil)

	if got := pool.Idle(def); got != 1 {
		t.Errorf("Idle = %d, want 1", got)
	}
}

func TestPoolPerDefinition(t *testing.T) {
	a := MustNormalize(Module{Name: "a", View: "a.html"})
	b := MustNormalize(Module{Name: "b", View: "b.html"})
	pool := NewPool(0)

	pool.Release(pool.Acquire(a))
	if got := pool.Acquire(b); got.Definition() != b {
		t.Error("Acquire handed out an instance of another definition")
	}
}

func TestPoolConcurrent(t *testing.T) {
	def := MustNormalize(Module{Name: "a", View: "a.html"})
	pool := NewPool(DefaultPoolSize)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := pool.Acquire(def)
			in.SetData(1)
			pool.Release(in)
		}()
	}
	wg.Wait()

	if got := pool.Idle(def); got > DefaultPoolSize {
		t.Errorf("Idle = %d exceeds capacity", got)
	}
}

func TestInstanceLifecycle(t *testing.T) {
	in := NewInstance(MustNormalize(Module{Name: "a", View: "a.html"}))

	steps := []State{StateParamsBound, StateAuthorized, StateBootstrapped, StateRendering, StateWriting, StateFlushing, StateWriting, StateFlushing}
	for _, s := range steps {
		if !in.Advance(s) {
			t.Fatalf("Advance(%v) from %v refused", s, in.State())
		}
	}
	if in.Advance(StateRendering) {
		t.Error("moving backwards should be refused")
	}
	if !in.Advance(StateEnded) {
		t.Fatal("Advance(ended) refused")
	}
	if in.Advance(StateEnded) {
		t.Error("ending twice should be a no-op")
	}
	if in.State().String() != "ended" {
		t.Errorf("State().String() = %q", in.State().String())
	}
}

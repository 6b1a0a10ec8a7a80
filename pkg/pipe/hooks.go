package pipe

import (
	"sync"
	"time"

	"github.com/vango-dev/bigpipe/pkg/pagelet"
)

// Recorder observes page rendering. The Prometheus collector in
// pkg/middleware implements it.
type Recorder interface {
	Rendered(pagelet string, d time.Duration, err error)
	Written(pagelet string, mode pagelet.Mode)
	Ended(result EndResult)
}

// Hooks are the page lifecycle events plugins can observe.
type Hooks struct {
	mu      sync.RWMutex
	onEnd   []func(*pagelet.Instance, error)
	onClose []func(*pagelet.Instance)
}

// OnEnd registers fn to run when a page terminates. err is nil for a clean
// close and the cause when the page went down the error path.
func (h *Hooks) OnEnd(fn func(in *pagelet.Instance, err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onEnd = append(h.onEnd, fn)
}

// OnClose registers fn to run when the client went away before the page
// ended. It runs on the request goroutine after the page stopped rendering,
// following any OnEnd call.
func (h *Hooks) OnClose(fn func(in *pagelet.Instance)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClose = append(h.onClose, fn)
}

func (h *Hooks) fireEnd(in *pagelet.Instance, err error) {
	if h == nil {
		return
	}
	h.mu.RLock()
	fns := h.onEnd
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(in, err)
	}
}

func (h *Hooks) fireClose(in *pagelet.Instance) {
	if h == nil {
		return
	}
	h.mu.RLock()
	fns := h.onClose
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(in)
	}
}

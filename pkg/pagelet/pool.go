package pagelet

import (
	"sync"
	"sync/atomic"
)

// DefaultPoolSize is the number of idle instances kept per definition.
const DefaultPoolSize = 20

// PoolStats counts pool traffic since creation.
type PoolStats struct {
	Allocated uint64
	Reused    uint64
	Released  uint64
	Dropped   uint64
}

// Pool is a bounded free list of instances, one list per definition.
// Instances are reset on release and handed out ready for binding.
type Pool struct {
	size  int
	mu    sync.Mutex
	lists map[*Definition]chan *Instance

	allocated atomic.Uint64
	reused    atomic.Uint64
	released  atomic.Uint64
	dropped   atomic.Uint64
}

// NewPool returns a pool keeping at most size idle instances per definition.
// A size below one uses DefaultPoolSize.
func NewPool(size int) *Pool {
	if size < 1 {
		size = DefaultPoolSize
	}
	return &Pool{size: size, lists: make(map[*Definition]chan *Instance)}
}

func (p *Pool) list(def *Definition) chan *Instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.lists[def]
	if !ok {
		ch = make(chan *Instance, p.size)
		p.lists[def] = ch
	}
	return ch
}

// Acquire returns an instance of def in the created state.
func (p *Pool) Acquire(def *Definition) *Instance {
	select {
	case in := <-p.list(def):
		in.pooled = false
		in.reset()
		p.reused.Add(1)
		return in
	default:
		p.allocated.Add(1)
		return newInstance(def)
	}
}

// Release resets in and returns it to its definition's list. When the list
// is full the instance is left to the garbage collector. Releasing an
// instance twice is a no-op.
func (p *Pool) Release(in *Instance) {
	if in == nil || in.pooled {
		return
	}
	in.reset()
	in.pooled = true
	select {
	case p.list(in.def) <- in:
		p.released.Add(1)
	default:
		p.dropped.Add(1)
	}
}

// Idle returns the number of pooled instances for def.
func (p *Pool) Idle(def *Definition) int {
	return len(p.list(def))
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Allocated: p.allocated.Load(),
		Reused:    p.reused.Load(),
		Released:  p.released.Load(),
		Dropped:   p.dropped.Load(),
	}
}

package rxpool

import (
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a scheduled callback.
type State int32

const (
	Scheduled State = iota
	Running
	Done
	Cancelled
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Running:
		return "running"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Coordinator schedules callbacks onto a WorkerPool. It holds no state besides the pool, and several
// coordinators may share one pool; their callbacks interleave freely.
type Coordinator struct {
	pool *WorkerPool
}

// NewCoordinator binds a Coordinator to pool.
func NewCoordinator(pool *WorkerPool) *Coordinator {
	return &Coordinator{pool: pool}
}

// Pool returns the bound WorkerPool.
func (c *Coordinator) Pool() *WorkerPool { return c.pool }

// Schedule runs fn on the pool, after delay when it is positive. The returned Handle cancels fn as long as it
// has not started. A callback that the pool discards on Stop, or fails to receive because it stopped meanwhile,
// is cancelled.
func (c *Coordinator) Schedule(fn func(), delay time.Duration) (*Handle, error) {
	return c.schedule(fn, delay, nil)
}

// schedule is Schedule with a hook called once when the pool discards the callback before it started.
func (c *Coordinator) schedule(fn func(), delay time.Duration, onDrop func()) (*Handle, error) {
	h := &Handle{done: make(chan struct{}), onDrop: onDrop}
	t := task{
		run: func() {
			if !h.state.CompareAndSwap(int32(Scheduled), int32(Running)) {
				return
			}
			defer h.finish(Done)
			fn()
		},
		drop: h.drop,
	}

	if delay <= 0 {
		if err := c.pool.submit(t); err != nil {
			return nil, err
		}
		return h, nil
	}

	// Checked upfront so that a stopped pool fails synchronously even for delayed callbacks.
	select {
	case <-c.pool.quit:
		return nil, ErrPoolClosed
	default:
	}
	h.timer.Store(time.AfterFunc(delay, func() {
		if err := c.pool.submit(t); err != nil {
			c.pool.logger.Warn("delayed callback not submitted", "error", err)
			h.drop()
		}
	}))
	return h, nil
}

// Handle tracks one scheduled callback.
type Handle struct {
	state  atomic.Int32
	timer  atomic.Pointer[time.Timer]
	done   chan struct{}
	onDrop func()
}

// Cancel prevents the callback from running if it has not started yet and reports whether it did so.
// Cancelling a running or finished callback has no effect.
func (h *Handle) Cancel() bool {
	if !h.state.CompareAndSwap(int32(Scheduled), int32(Cancelled)) {
		return false
	}
	if t := h.timer.Load(); t != nil {
		t.Stop()
	}
	close(h.done)
	return true
}

// State returns the current state of the callback.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Done is closed once the callback has returned or was cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// drop cancels a callback the pool discarded and notifies the owner of the Handle.
func (h *Handle) drop() {
	if h.Cancel() && h.onDrop != nil {
		h.onDrop()
	}
}

func (h *Handle) finish(s State) {
	h.state.Store(int32(s))
	close(h.done)
}

package rxpool

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Work processes one input value into one output value.
type Work[T, R any] func(T) (R, error)

// AsWork decorates an infallible function, in order to make it seen as a Work
func AsWork[T, R any](fn func(T) R) Work[T, R] {
	return func(t T) (R, error) { return fn(t), nil }
}

// FanOut schedules one unit of work on a Coordinator for every value published by its input Subject. Each unit
// that succeeds publishes exactly one value to the output Subject, from whichever worker ran it, so outputs may
// arrive out of input order.
//
// A unit returning an error or panicking is dropped and logged. When the input completes, the output completes
// as soon as every remaining unit finished or was cancelled.
type FanOut[T, R any] struct {
	coord  *Coordinator
	out    *Subject[R]
	work   Work[T, R]
	logger *slog.Logger
	sub    *Subscription

	mu           sync.Mutex
	seq          uint64
	pending      map[uint64]*Handle
	upstreamDone bool

	failures atomic.Int64
}

// NewFanOut wires in to out through work scheduled on coord.
func NewFanOut[T, R any](coord *Coordinator, in *Subject[T], out *Subject[R], work Work[T, R]) *FanOut[T, R] {
	f := &FanOut[T, R]{
		coord:   coord,
		out:     out,
		work:    work,
		logger:  coord.pool.logger.With("component", "fan_out"),
		pending: make(map[uint64]*Handle),
	}
	f.sub = in.Subscribe(Observer[T]{
		OnNext:      f.dispatch,
		OnCompleted: f.upstreamCompleted,
		OnError:     out.OnError,
	})
	return f
}

// Pending returns the number of units scheduled and not finished yet.
func (f *FanOut[T, R]) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// CancelPending cancels every unit that has not started and returns how many were cancelled. Cancelled units
// never publish; started ones run to completion.
func (f *FanOut[T, R]) CancelPending() int {
	f.mu.Lock()
	cancelled := 0
	for id, h := range f.pending {
		if h.Cancel() {
			delete(f.pending, id)
			cancelled++
		}
	}
	drained := f.drainedLocked()
	f.mu.Unlock()

	if drained {
		f.out.OnCompleted()
	}
	return cancelled
}

// Failures returns how many units failed.
func (f *FanOut[T, R]) Failures() int64 { return f.failures.Load() }

// Stop detaches the FanOut from its input. Scheduled units still run.
func (f *FanOut[T, R]) Stop() {
	f.sub.Unsubscribe()
}

func (f *FanOut[T, R]) dispatch(v T) {
	f.mu.Lock()
	f.seq++
	id := f.seq
	h, err := f.coord.schedule(func() { f.run(id, v) }, 0, func() { f.dropped(id) })
	if err == nil {
		// Registered under f.mu: run cannot remove the handle before it is stored.
		f.pending[id] = h
	}
	f.mu.Unlock()

	if err != nil {
		f.logger.Error("scheduling unit", "unit", id, "error", err)
		f.out.OnError(fmt.Errorf("fan-out unit %d: %w", id, err))
	}
}

func (f *FanOut[T, R]) run(id uint64, v T) {
	defer f.finish(id)
	defer func() {
		if r := recover(); r != nil {
			f.fail(id, &TaskFailure{Cause: r})
		}
	}()

	r, err := f.work(v)
	if err != nil {
		f.fail(id, &TaskFailure{Cause: err})
		return
	}
	f.out.OnNext(r)
}

func (f *FanOut[T, R]) fail(id uint64, err *TaskFailure) {
	f.failures.Add(1)
	f.logger.Warn("dropping unit", "unit", id, "error", err)
}

func (f *FanOut[T, R]) finish(id uint64) {
	f.mu.Lock()
	delete(f.pending, id)
	drained := f.drainedLocked()
	f.mu.Unlock()

	if drained {
		f.out.OnCompleted()
	}
}

// dropped accounts for a unit the pool discarded on Stop: it never publishes, like a cancelled one.
func (f *FanOut[T, R]) dropped(id uint64) {
	f.logger.Warn("unit dropped by stopped pool", "unit", id)
	f.finish(id)
}

func (f *FanOut[T, R]) upstreamCompleted() {
	f.mu.Lock()
	f.upstreamDone = true
	drained := f.drainedLocked()
	f.mu.Unlock()

	if drained {
		f.out.OnCompleted()
	}
}

func (f *FanOut[T, R]) drainedLocked() bool {
	return f.upstreamDone && len(f.pending) == 0
}

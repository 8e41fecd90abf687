package rxpool

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Fold accumulates one value into the running total.
type Fold[A, T any] func(acc A, v T) A

// Aggregation folds the first target values of a Subject, then fires a Broadcast once.
//
// Firing the Broadcast rather than completing the observed stream is what lets every sibling stream terminate:
// a barrier merging several independently driven streams only releases once all of them completed.
type Aggregation[T, A any] struct {
	target int
	fold   Fold[A, T]
	onStep func(count int, acc A)
	onDone func(acc A)

	mu    sync.Mutex
	acc   A
	count int
	done  chan struct{}
}

// NewAggregation builds an Aggregation over target values starting from seed.
func NewAggregation[T, A any](target int, seed A, fold Fold[A, T]) (*Aggregation[T, A], error) {
	if target < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTarget, target)
	}
	return &Aggregation[T, A]{
		target: target,
		fold:   fold,
		acc:    seed,
		done:   make(chan struct{}),
	}, nil
}

// OnStep sets a hook called with the running total after every folded value.
func (a *Aggregation[T, A]) OnStep(fn func(count int, acc A)) *Aggregation[T, A] {
	a.onStep = fn
	return a
}

// OnDone sets a hook called with the final total once the target is reached, before the Broadcast fires.
func (a *Aggregation[T, A]) OnDone(fn func(acc A)) *Aggregation[T, A] {
	a.onDone = fn
	return a
}

// Attach starts folding values of in. Reaching the target fires done; an error on in before that fails it.
// Completion of in before the target is reached fires nothing.
func (a *Aggregation[T, A]) Attach(in *Subject[T], done *Broadcast) *Subscription {
	var sub atomic.Pointer[Subscription]
	sub.Store(in.Subscribe(Observer[T]{
		OnNext: func(v T) {
			acc, reached := a.step(v)
			if !reached {
				return
			}
			if s := sub.Load(); s != nil {
				s.Unsubscribe()
			}
			if a.onDone != nil {
				a.onDone(acc)
			}
			done.Complete()
		},
		OnError: done.Fail,
	}))
	return sub.Load()
}

// Count returns how many values were folded.
func (a *Aggregation[T, A]) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Total returns the running total.
func (a *Aggregation[T, A]) Total() A {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acc
}

// Done is closed once the target is reached.
func (a *Aggregation[T, A]) Done() <-chan struct{} { return a.done }

// step folds v unless the target was already reached and reports whether v was the last one.
func (a *Aggregation[T, A]) step(v T) (acc A, reached bool) {
	a.mu.Lock()
	if a.count >= a.target {
		a.mu.Unlock()
		return acc, false
	}
	a.acc = a.fold(a.acc, v)
	a.count++
	acc, count := a.acc, a.count
	reached = count == a.target
	if reached {
		close(a.done)
	}
	a.mu.Unlock()

	if a.onStep != nil {
		a.onStep(count, acc)
	}
	return acc, reached
}

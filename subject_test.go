package rxpool_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/fogfactory/rxpool"
	"github.com/maxatome/go-testdeep/td"
	"github.com/samber/lo"
)

// recorder collects every notification received by an observer.
type recorder[T any] struct {
	mu        sync.Mutex
	values    []T
	completed int
	errs      []error
}

func (r *recorder[T]) observer() rxpool.Observer[T] {
	return rxpool.Observer[T]{
		OnNext: func(v T) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.values = append(r.values, v)
		},
		OnCompleted: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completed++
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recorder[T]) snapshot() ([]T, int, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...), r.completed, append([]error(nil), r.errs...)
}

func TestSubject(t *testing.T) {

	t.Run("multicast_in_order", func(t *testing.T) {
		// Arrange
		subject := rxpool.NewSubject[int]()
		recorders := []*recorder[int]{{}, {}, {}}
		for _, r := range recorders {
			subject.Subscribe(r.observer())
		}

		// Act
		for _, v := range lo.Range(10) {
			subject.OnNext(v)
		}
		subject.OnCompleted()

		// Assert
		for _, r := range recorders {
			values, completed, errs := r.snapshot()
			td.Cmp(t, values, lo.Range(10))
			td.Cmp(t, completed, 1)
			td.CmpEmpty(t, errs)
		}
		td.Cmp(t, subject.SubscriberCount(), 0, "subscriptions are released on completion")
	})

	t.Run("only_values_published_after_subscription", func(t *testing.T) {
		// Arrange
		subject := rxpool.NewSubject[int]()
		var late recorder[int]
		subject.OnNext(1)

		// Act
		subject.Subscribe(late.observer())
		subject.OnNext(2)

		// Assert
		values, _, _ := late.snapshot()
		td.Cmp(t, values, []int{2})
	})

	t.Run("completion_is_terminal", func(t *testing.T) {
		// Arrange
		subject := rxpool.NewSubject[int]()
		var r recorder[int]
		subject.Subscribe(r.observer())

		// Act
		subject.OnCompleted()
		subject.OnNext(1)
		subject.OnCompleted()
		subject.OnError(errors.New("too late"))

		// Assert
		values, completed, errs := r.snapshot()
		td.CmpEmpty(t, values)
		td.Cmp(t, completed, 1)
		td.CmpEmpty(t, errs)
		td.CmpTrue(t, subject.Completed())
	})

	t.Run("subscribe_after_termination", func(t *testing.T) {
		// Arrange
		completedSubject := rxpool.NewSubject[int]()
		completedSubject.OnCompleted()
		failedSubject := rxpool.NewSubject[int]()
		boom := errors.New("boom")
		failedSubject.OnError(boom)
		var onCompleted, onFailed recorder[int]

		// Act
		sub := completedSubject.Subscribe(onCompleted.observer())
		failedSubject.Subscribe(onFailed.observer())

		// Assert
		_, completed, _ := onCompleted.snapshot()
		td.Cmp(t, completed, 1)
		td.CmpFalse(t, sub.Active())
		_, _, errs := onFailed.snapshot()
		td.Cmp(t, errs, td.Len(1))
		td.CmpErrorIs(t, errs[0], boom)
	})

	t.Run("unsubscribe", func(t *testing.T) {
		// Arrange
		subject := rxpool.NewSubject[int]()
		var r recorder[int]
		sub := subject.Subscribe(r.observer())
		subject.OnNext(1)

		// Act
		sub.Unsubscribe()
		sub.Unsubscribe()
		subject.OnNext(2)
		subject.OnCompleted()

		// Assert
		values, completed, _ := r.snapshot()
		td.Cmp(t, values, []int{1})
		td.Cmp(t, completed, 0)
		td.Cmp(t, subject.SubscriberCount(), 0)
		td.CmpNot(t, sub.ID().String(), "")
	})

	t.Run("reentrant_termination", func(t *testing.T) {
		// Arrange
		subject := rxpool.NewSubject[int]()
		var r recorder[int]
		subject.Subscribe(rxpool.Observer[int]{
			OnNext: func(v int) {
				if v == 2 {
					subject.OnCompleted() // would deadlock with a delivery lock held
				}
			},
		})
		subject.Subscribe(r.observer())

		// Act
		subject.OnNext(1)
		subject.OnNext(2)
		subject.OnNext(3)

		// Assert: the completion is queued after the value being delivered
		values, completed, _ := r.snapshot()
		td.Cmp(t, values, []int{1, 2})
		td.Cmp(t, completed, 1)
	})

	t.Run("panicking_observer_does_not_lose_notifications", func(t *testing.T) {
		// Arrange
		subject := rxpool.NewSubject[int]()
		var r recorder[int]
		subject.Subscribe(rxpool.Observer[int]{
			OnNext: func(v int) {
				if v == 0 {
					subject.OnNext(1)
					subject.OnCompleted()
					panic("boom")
				}
			},
		})
		subject.Subscribe(r.observer())

		// Act
		td.CmpPanic(t, func() { subject.OnNext(0) }, "boom")

		// Assert: the values and the completion queued before the panic still reach the other observer
		values, completed, _ := r.snapshot()
		td.Cmp(t, values, []int{0, 1})
		td.Cmp(t, completed, 1)
		td.CmpTrue(t, subject.Completed())
		td.CmpNotPanic(t, func() { subject.OnNext(2) }, "the subject is not left emitting")
	})

	t.Run("concurrent_publishers", func(t *testing.T) {
		// Arrange
		const publishers, perPublisher = 8, 200
		type event struct{ publisher, seq int }
		subject := rxpool.NewSubject[event]()
		recorders := []*recorder[event]{{}, {}}
		for _, r := range recorders {
			subject.Subscribe(r.observer())
		}

		// Act
		var wg sync.WaitGroup
		for p := range lo.Range(publishers) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for seq := range lo.Range(perPublisher) {
					subject.OnNext(event{publisher: p, seq: seq})
				}
			}()
		}
		wg.Wait()
		subject.OnCompleted()

		// Assert
		first, _, _ := recorders[0].snapshot()
		second, _, _ := recorders[1].snapshot()
		td.Cmp(t, first, td.Len(publishers*perPublisher))
		td.Cmp(t, second, first, "every subscriber sees the same publish order")
		for _, events := range lo.GroupBy(first, func(e event) int { return e.publisher }) {
			td.Cmp(t, lo.Map(events, func(e event, _ int) int { return e.seq }), lo.Range(perPublisher))
		}
	})
}

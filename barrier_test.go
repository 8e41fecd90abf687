package rxpool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fogfactory/rxpool"
	"github.com/maxatome/go-testdeep/td"
	"github.com/samber/lo"
)

func TestAwaitAll(t *testing.T) {

	t.Run("no_source", func(t *testing.T) {
		td.CmpNoError(t, rxpool.AwaitAll(context.Background()))
	})

	t.Run("all_sources_completed", func(t *testing.T) {
		// Arrange
		sources := []*rxpool.Subject[int]{rxpool.NewSubject[int](), rxpool.NewSubject[int](), rxpool.NewSubject[int]()}
		sources[0].OnCompleted() // completed before the wait
		go func() {
			time.Sleep(10 * time.Millisecond)
			sources[2].OnCompleted()
			sources[1].OnCompleted()
		}()

		// Act
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		err := rxpool.AwaitAll(ctx, lo.Map(sources, func(s *rxpool.Subject[int], _ int) rxpool.Source { return s })...)

		// Assert
		td.CmpNoError(t, err)
	})

	t.Run("waits_for_every_source", func(t *testing.T) {
		// Arrange
		a, b := rxpool.NewSubject[int](), rxpool.NewSubject[string]()
		a.OnCompleted()

		// Act
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := rxpool.AwaitAll(ctx, a, b)

		// Assert
		td.CmpErrorIs(t, err, context.DeadlineExceeded)
		td.Cmp(t, b.SubscriberCount(), 0, "watchers are released when the wait ends")
	})

	t.Run("error_preempts_completion", func(t *testing.T) {
		// Arrange
		a, b, c := rxpool.NewSubject[int](), rxpool.NewSubject[int](), rxpool.NewSubject[int]()
		boom := errors.New("boom")
		go func() {
			time.Sleep(10 * time.Millisecond)
			a.OnCompleted()
			b.OnError(boom)
		}()

		// Act
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		err := rxpool.AwaitAll(ctx, a, b, c)

		// Assert
		td.CmpErrorIs(t, err, boom)
		td.Cmp(t, err, td.Isa(&rxpool.BarrierError{}))
		td.Cmp(t, err, td.Struct(&rxpool.BarrierError{Source: 1}, td.StructFields{"Err": td.Ignore()}))
	})
}

func TestBroadcast(t *testing.T) {

	t.Run("completes_every_target_once", func(t *testing.T) {
		// Arrange
		a, b := rxpool.NewSubject[int](), rxpool.NewSubject[int]()
		var ra, rb recorder[int]
		a.Subscribe(ra.observer())
		b.Subscribe(rb.observer())
		done := rxpool.NewBroadcast(a)
		done.Add(b)

		// Act
		done.Complete()
		done.Complete()
		done.Fail(errors.New("ignored"))

		// Assert
		_, completedA, errsA := ra.snapshot()
		_, completedB, _ := rb.snapshot()
		td.Cmp(t, completedA, 1)
		td.Cmp(t, completedB, 1)
		td.CmpEmpty(t, errsA)
		td.CmpNoError(t, done.Err())
	})

	t.Run("late_target", func(t *testing.T) {
		// Arrange
		done := rxpool.NewBroadcast()
		boom := errors.New("boom")
		done.Fail(boom)
		late := rxpool.NewSubject[int]()

		// Act
		done.Add(late)

		// Assert
		select {
		case <-done.Done():
		default:
			t.Fatal("broadcast should have fired")
		}
		td.CmpTrue(t, late.Completed())
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		td.CmpErrorIs(t, rxpool.AwaitAll(ctx, late), boom)
	})
}

package rxpool

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed is returned when work is submitted to a stopped WorkerPool.
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrInvalidTarget is returned when an Aggregation is built with a target below 1.
	ErrInvalidTarget = errors.New("invalid aggregation target")
)

// TaskFailure describes an error or a panic escaping a unit of work. It is logged and discarded at the worker boundary.
type TaskFailure struct {
	Cause any
}

func (f *TaskFailure) Error() string {
	return fmt.Sprintf("task failure: %v", f.Cause)
}

// Unwrap returns the cause when it is an error.
func (f *TaskFailure) Unwrap() error {
	if err, ok := f.Cause.(error); ok {
		return err
	}
	return nil
}

// BarrierError is returned by AwaitAll when one of the merged sources signals an error.
type BarrierError struct {
	Source int // index of the failing source in the AwaitAll arguments
	Err    error
}

func (e *BarrierError) Error() string {
	return fmt.Sprintf("barrier source %d failed: %v", e.Source, e.Err)
}

func (e *BarrierError) Unwrap() error { return e.Err }

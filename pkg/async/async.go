// Package async runs work on a goroutine and hands the caller a Future to
// wait on. It is used for fire-and-forget steps whose completion a caller may
// still want to observe, such as mirroring subscription state onto tenants.
package async

import (
	"context"
	"errors"
)

var ErrNoFutures = errors.New("async.no_futures")

// Future is the eventual result of a call started with Go.
type Future[U any] struct {
	result U
	err    error
	done   chan struct{}
}

// Go runs fn on a new goroutine. A panic in fn is recovered and reported as
// the future's error so fire-and-forget work cannot crash the process.
func Go[U any](ctx context.Context, fn func(context.Context) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = &PanicError{Value: r}
			}
		}()

		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.result, f.err = fn(ctx)
	}()

	return f
}

// Completed returns a future that already holds result and err.
func Completed[U any](result U, err error) *Future[U] {
	f := &Future[U]{result: result, err: err, done: make(chan struct{})}
	close(f.done)
	return f
}

// Await blocks until the work finishes or ctx is done.
func (f *Future[U]) Await(ctx context.Context) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero U
		return zero, ctx.Err()
	}
}

// Done is closed when the work has finished.
func (f *Future[U]) Done() <-chan struct{} {
	return f.done
}

// IsComplete reports whether the work has finished without blocking.
func (f *Future[U]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// WaitAll waits for every future and joins their errors.
func WaitAll[U any](ctx context.Context, futures ...*Future[U]) ([]U, error) {
	if len(futures) == 0 {
		return nil, ErrNoFutures
	}
	results := make([]U, len(futures))
	var errs []error
	for i, f := range futures {
		res, err := f.Await(ctx)
		results[i] = res
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "async: task panicked"
}

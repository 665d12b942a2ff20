package sidecar

import (
	"context"
	"sync/atomic"
)

// future is a settable-once result cell. The first resolve wins; later calls
// are ignored.
type future[T any] struct {
	val  T
	err  error
	done chan struct{}
	set  atomic.Bool
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

// resolve stores the outcome and reports whether this call set it.
func (f *future[T]) resolve(val T, err error) bool {
	if !f.set.CompareAndSwap(false, true) {
		return false
	}
	f.val = val
	f.err = err
	close(f.done)
	return true
}

func (f *future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *future[T]) resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves or ctx is done.
func (f *future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

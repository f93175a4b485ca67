package models

import (
	"context"
	"sync"
)

// Future holds the result of work running on the scheduler.
type Future[T any] struct {
	input    chan T
	resolved chan struct{}
	value    T
	cancel   context.CancelFunc
	lock     sync.Mutex
}

func NewFuture[T any](input chan T, cancel context.CancelFunc) *Future[T] {
	f := &Future[T]{
		input:    input,
		resolved: make(chan struct{}),
		cancel:   cancel,
	}

	go func() {
		v := <-f.input
		f.lock.Lock()
		f.value = v
		f.lock.Unlock()

		close(f.resolved)
		f.cancel()
	}()

	return f
}

func (f *Future[T]) Poll() (value T, isResolved bool) {
	select {
	case <-f.resolved:
		f.lock.Lock()
		defer f.lock.Unlock()
		return f.value, true
	default:
		var none T
		return none, false
	}
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.resolved:
		f.lock.Lock()
		defer f.lock.Unlock()
		return f.value, nil
	case <-ctx.Done():
		var none T
		return none, ctx.Err()
	}
}

func (f *Future[T]) Stop() {
	f.cancel()
}

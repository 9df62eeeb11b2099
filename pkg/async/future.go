package async

import (
	"sync"
	"time"
)

// Future represents the result of an asynchronous operation that is resolved
// by its producer at most once.
type Future[U any] struct {
	result U
	err    error
	once   sync.Once
	done   chan struct{}
}

// Resolve completes the future with a result and error. Subsequent calls are
// no-ops, so racing producers cannot overwrite a delivered result.
type Resolve[U any] func(result U, err error)

// NewFuture creates an unresolved future and the function that resolves it.
func NewFuture[U any]() (*Future[U], Resolve[U]) {
	f := &Future[U]{done: make(chan struct{})}
	resolve := func(result U, err error) {
		f.once.Do(func() {
			f.result = result
			f.err = err
			close(f.done)
		})
	}
	return f, resolve
}

// Resolved returns a future that already holds the given result.
func Resolved[U any](result U, err error) *Future[U] {
	f, resolve := NewFuture[U]()
	resolve(result, err)
	return f
}

// Await blocks until the future is resolved and returns its result and error.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitWithTimeout waits for resolution up to the given timeout. When the
// timeout elapses first it returns ErrTimeout; the future stays valid and can
// be awaited again.
func (f *Future[U]) AwaitWithTimeout(timeout time.Duration) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-time.After(timeout):
		var zero U
		return zero, ErrTimeout
	}
}

// IsComplete reports whether the future has been resolved, without blocking.
func (f *Future[U]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done exposes the completion channel for use in select statements.
func (f *Future[U]) Done() <-chan struct{} {
	return f.done
}

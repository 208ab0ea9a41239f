package streams

import "context"

// Task is the concrete effect type pullstream programs run: a function from
// a context to a (value, error) pair. It stands in for the abstract effect
// parameter F[_] that spec's algebra is written against — Go has no way to
// abstract over that shape directly, so Task fixes it to the one every
// blocking call in the teacher's parallel.go and context.go already uses.
type Task[T any] func(ctx context.Context) (T, error)

// Fiber is a handle to a Task running concurrently on its own goroutine. It
// is the Go rendition of the lightweight, cancellable fiber spec.md §5
// requires parJoin/concurrently/observe to be built from.
type Fiber[T any] struct {
	result *Deferred[Result[T]]
	cancel context.CancelFunc
}

// Join blocks until the fiber completes, is canceled, or ctx is done,
// returning whichever comes first.
func (f *Fiber[T]) Join(ctx context.Context) (T, error) {
	r, err := f.result.Get(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.Get()
}

// Cancel requests that the fiber's context be canceled. It does not wait
// for the fiber to observe the cancellation; call Join afterward if that is
// required.
func (f *Fiber[T]) Cancel() {
	f.cancel()
}

// Runtime starts fibers through its Start method, a thin wrapper over
// StartTyped. The concurrent combinators in this package call StartTyped
// directly; none of them takes or shares a Runtime value.
type Runtime struct{}

// NewRuntime creates a Runtime. Runtime carries no mutable state of its own
// today; it exists as the named capability spec.md §4.5/§9 calls for, and is
// the extension point for supervisor-tree style fiber accounting.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// Start spawns t on its own goroutine, derived from ctx, and returns a
// Fiber handle for joining or canceling it.
func (rt *Runtime) Start(ctx context.Context, t Task[any]) *Fiber[any] {
	return StartTyped(ctx, t)
}

// StartTyped is the generic form of Start, used internally where the
// result type is known statically rather than erased to any.
func StartTyped[T any](ctx context.Context, t Task[T]) *Fiber[T] {
	fctx, cancel := context.WithCancel(ctx)
	f := &Fiber[T]{
		result: NewDeferred[Result[T]](),
		cancel: cancel,
	}
	go func() {
		v, err := t(fctx)
		if err != nil {
			f.result.Complete(Err[T](err))
			return
		}
		f.result.Complete(Ok(v))
	}()
	return f
}

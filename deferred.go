package streams

import (
	"context"
	"sync"
)

// Deferred is a one-shot write-once, read-many cell: Complete may be called
// at most once, and any number of goroutines may call Get, each blocking
// until a value is available (or ctx is canceled). It is the building block
// Scope uses for its interrupt signal and Runtime uses for Fiber results,
// grounded on the same "close-once, multi-waiter" idiom samber/ro's
// subscription.go uses for its done channel and juniper's stream.Pipe uses
// for senderDone.
type Deferred[A any] struct {
	mu       sync.Mutex
	done     chan struct{}
	value    A
	complete bool
}

// NewDeferred creates an empty Deferred.
func NewDeferred[A any]() *Deferred[A] {
	return &Deferred[A]{done: make(chan struct{})}
}

// Complete sets the Deferred's value, waking every pending and future Get
// call. Calling Complete a second time is a no-op; it does not overwrite the
// first value and does not panic, matching the "single completion wins"
// semantics used for Scope interruption (the first interrupt reason sticks).
func (d *Deferred[A]) Complete(value A) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.complete {
		return false
	}
	d.value = value
	d.complete = true
	close(d.done)
	return true
}

// Get blocks until the Deferred is completed or ctx is canceled.
func (d *Deferred[A]) Get(ctx context.Context) (A, error) {
	select {
	case <-d.done:
		d.mu.Lock()
		v := d.value
		d.mu.Unlock()
		return v, nil
	case <-ctx.Done():
		var zero A
		return zero, ctx.Err()
	}
}

// TryGet returns the value and true if the Deferred has already been
// completed, without blocking.
func (d *Deferred[A]) TryGet() (A, bool) {
	select {
	case <-d.done:
		d.mu.Lock()
		v := d.value
		d.mu.Unlock()
		return v, true
	default:
		var zero A
		return zero, false
	}
}

// Done returns a channel that is closed once the Deferred is completed, for
// use in select statements alongside other channels.
func (d *Deferred[A]) Done() <-chan struct{} {
	return d.done
}

// IsComplete reports whether Complete has already been called.
func (d *Deferred[A]) IsComplete() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

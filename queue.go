package streams

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Offer/Take once a BoundedQueue has been
// closed and, for Take, once the closed queue has been fully drained.
var ErrQueueClosed = errors.New("streams: queue closed")

// BoundedQueue is a FIFO channel-backed queue with capacity-based
// backpressure, used to hand Chunks between producer and consumer
// goroutines in parJoin/merge/PubSub. A non-positive capacity yields a
// synchronous rendezvous queue (Offer blocks until a consumer calls Take)
// rather than unbounded buffering; for genuine unbounded buffering use
// UnboundedQueue (spec.md §6's Queue.unbounded). Close causes pending and
// future Offer calls to fail and lets Take drain whatever remains before
// reporting ErrQueueClosed, matching spec.md §4.5's BoundedQueue semantics
// and grounded on juniper's stream.Pipe (bounded channel handoff racing
// ctx) vendored in rclone.
type BoundedQueue[A any] struct {
	ch     chan A
	closed chan struct{}
	once   sync.Once
}

// NewBoundedQueue creates a BoundedQueue with the given capacity. A
// capacity of 0 yields a synchronous rendezvous queue (Offer blocks until a
// consumer calls Take); a negative capacity is treated as 0 and also yields
// a rendezvous queue. Go channels require a fixed buffer, so there is no
// unbounded mode here; UnboundedQueue provides unbounded buffering.
func NewBoundedQueue[A any](capacity int) *BoundedQueue[A] {
	if capacity < 0 {
		capacity = 0
	}
	return &BoundedQueue[A]{
		ch:     make(chan A, capacity),
		closed: make(chan struct{}),
	}
}

// Offer enqueues v, blocking until there is room, the queue is closed, or
// ctx is canceled.
func (q *BoundedQueue[A]) Offer(ctx context.Context, v A) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- v:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryOffer enqueues v without blocking, returning false if the queue is
// full or closed.
func (q *BoundedQueue[A]) TryOffer(v A) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.ch <- v:
		return true
	default:
		return false
	}
}

// Take dequeues the next value, blocking until one is available, the queue
// is closed and drained, or ctx is canceled. The data channel itself is
// never closed (producers may still race a concurrent Close call), so
// draining is implemented by preferring a buffered value over the closed
// signal whenever both are ready.
func (q *BoundedQueue[A]) Take(ctx context.Context) (A, error) {
	select {
	case v := <-q.ch:
		return v, nil
	default:
	}
	select {
	case v := <-q.ch:
		return v, nil
	case <-q.closed:
		select {
		case v := <-q.ch:
			return v, nil
		default:
			var zero A
			return zero, ErrQueueClosed
		}
	case <-ctx.Done():
		var zero A
		return zero, ctx.Err()
	}
}

// Close marks the queue closed. Pending Take calls still observe any
// values already buffered before the channel reports closed. Close is
// idempotent.
func (q *BoundedQueue[A]) Close() {
	q.once.Do(func() {
		close(q.closed)
	})
}

// IsClosed reports whether Close has been called.
func (q *BoundedQueue[A]) IsClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

// UnboundedQueue is an unbounded FIFO queue: Offer always succeeds
// immediately unless the queue has been closed, the Go rendition of
// spec.md §6's Queue.unbounded constructor. A fixed-capacity Go channel
// cannot back genuine unbounded growth, so this holds a mutex-protected
// slice instead, with a single-slot notify channel waking any blocked Take
// as soon as an item arrives.
type UnboundedQueue[A any] struct {
	mu     sync.Mutex
	buf    []A
	notify chan struct{}
	closed chan struct{}
	once   sync.Once
}

// NewUnboundedQueue creates an empty UnboundedQueue.
func NewUnboundedQueue[A any]() *UnboundedQueue[A] {
	return &UnboundedQueue[A]{
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Offer appends v to the queue. It fails only once the queue has been
// closed.
func (q *UnboundedQueue[A]) Offer(v A) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	q.mu.Lock()
	q.buf = append(q.buf, v)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Take dequeues the next value, blocking until one is available, the queue
// is closed and drained, or ctx is canceled.
func (q *UnboundedQueue[A]) Take(ctx context.Context) (A, error) {
	for {
		if v, ok := q.tryDequeue(); ok {
			return v, nil
		}
		select {
		case <-q.notify:
			continue
		case <-q.closed:
			if v, ok := q.tryDequeue(); ok {
				return v, nil
			}
			var zero A
			return zero, ErrQueueClosed
		case <-ctx.Done():
			var zero A
			return zero, ctx.Err()
		}
	}
}

func (q *UnboundedQueue[A]) tryDequeue() (A, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		var zero A
		return zero, false
	}
	v := q.buf[0]
	q.buf = q.buf[1:]
	return v, true
}

// Close marks the queue closed. Close is idempotent.
func (q *UnboundedQueue[A]) Close() {
	q.once.Do(func() { close(q.closed) })
}

// IsClosed reports whether Close has been called.
func (q *UnboundedQueue[A]) IsClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

package streams

import (
	"context"
	"sync"

	"github.com/ilxqx/go-collections"
)

// Strategy determines how a PubSub distributes published values to its
// subscribers. Spec.md §4.5 parameterizes PubSub over an abstract
// (State, Selector) pair so that a single publish/subscribe core can be
// specialized into "broadcast to everyone" or "route by topic". Go's lack
// of generic methods on generic interfaces (a method can use its own
// receiver's type parameters but an interface method set cannot add new
// ones per call) rules out mirroring that signature exactly; Strategy
// instead fixes Selector to a predicate closure per subscription, which
// covers both Broadcast (predicate always true) and Topic (predicate
// checks key membership) without a second type parameter.
type Strategy[T any] interface {
	// Accepts reports whether a subscriber registered with sel should
	// receive v.
	Accepts(sel func(T) bool, v T) bool
	// SubscriberQueueSize returns the inbound queue capacity a new
	// subscriber should actually be given, given the size the caller
	// requested of the PubSub as a whole. This is what lets Broadcast and
	// Topic diverge even though they share the same per-subscriber
	// BoundedQueue delivery mechanism: Broadcast fixes every subscriber's
	// capacity at one, so the next value is accepted only once every
	// subscriber has taken the previous one and a fast subscriber is at
	// most one value ahead of the slowest; Topic has no such requirement
	// and honors the requested size.
	SubscriberQueueSize(requested int) int
}

type broadcastStrategy[T any] struct{}

func (broadcastStrategy[T]) Accepts(sel func(T) bool, v T) bool {
	if sel == nil {
		return true
	}
	return sel(v)
}

// SubscriberQueueSize always returns 1: Broadcast gives every subscriber a
// one-slot queue regardless of what was requested, so Publish of the next
// value cannot return until every subscriber has taken the previous one.
func (broadcastStrategy[T]) SubscriberQueueSize(int) int {
	return 1
}

// BroadcastStrategy delivers every published value to every subscriber in
// lockstep, grounded on spec.md §4.5's named Broadcast strategy.
func BroadcastStrategy[T any]() Strategy[T] {
	return broadcastStrategy[T]{}
}

type topicStrategy[T any] struct{}

func (topicStrategy[T]) Accepts(sel func(T) bool, v T) bool {
	if sel == nil {
		return false
	}
	return sel(v)
}

// SubscriberQueueSize honors whatever capacity the PubSub was created
// with: Topic subscribers are independent bounded queues with no
// lockstep requirement between them.
func (topicStrategy[T]) SubscriberQueueSize(requested int) int {
	return requested
}

// TopicStrategy delivers a published value only to subscribers whose
// selector predicate matches it, grounded on spec.md §4.5's named Topic
// strategy (subscribers select by key; the selector predicate here is the
// Go rendition of "subscribed to topic K").
func TopicStrategy[T any]() Strategy[T] {
	return topicStrategy[T]{}
}

type subscriberState[T any] struct {
	selector func(T) bool
	queue    *BoundedQueue[T]
}

// PubSub is a concurrent publish/subscribe hub: Publish fans a value out to
// every currently-registered subscriber whose Strategy accepts it, and each
// Subscribe call returns an independent channel-backed view so that a slow
// subscriber only back-pressures Publish up to its own queue's capacity
// (spec.md §4.5). The subscriber registry is backed by a
// collections.Map[Token, *subscriberState[T]], mirroring the teacher's own
// use of collections.Map as the backing store for its ToHashMapC/GroupByToHashMap
// collectors.
type PubSub[T any] struct {
	strategy    Strategy[T]
	queueSize   int
	mu          sync.RWMutex
	subscribers collections.Map[Token, *subscriberState[T]]
}

// NewPubSub creates a PubSub using the given Strategy, with each
// subscriber's inbound queue sized queueSize (0 for a rendezvous queue).
func NewPubSub[T any](strategy Strategy[T], queueSize int) *PubSub[T] {
	return &PubSub[T]{
		strategy:    strategy,
		queueSize:   queueSize,
		subscribers: collections.NewHashMap[Token, *subscriberState[T]](),
	}
}

// Subscription is a handle returned by Subscribe; Receive pulls the next
// value routed to this subscriber and Unsubscribe removes it from future
// Publish fan-out.
type Subscription[T any] struct {
	token Token
	ps    *PubSub[T]
	queue *BoundedQueue[T]
}

// Receive blocks for the next value routed to this subscription.
func (sub *Subscription[T]) Receive(ctx context.Context) (T, error) {
	return sub.queue.Take(ctx)
}

// Unsubscribe closes this subscription's queue, waking any blocked Receive
// call with ErrQueueClosed. The entry is left in the registry (the Map
// interface exposes Put/Get/Seq but no removal), and Publish skips closed
// subscribers by checking IsClosed, so an unsubscribed entry simply stops
// receiving further values.
func (sub *Subscription[T]) Unsubscribe() {
	sub.queue.Close()
}

// Subscribe registers a new subscription. selector, when non-nil, is
// consulted by the PubSub's Strategy to decide whether a given published
// value should be routed to this subscriber (used by TopicStrategy); pass
// nil for BroadcastStrategy.
func (ps *PubSub[T]) Subscribe(selector func(T) bool) *Subscription[T] {
	tok := NewToken()
	queueSize := ps.strategy.SubscriberQueueSize(ps.queueSize)
	st := &subscriberState[T]{selector: selector, queue: NewBoundedQueue[T](queueSize)}
	ps.mu.Lock()
	ps.subscribers.Put(tok, st)
	ps.mu.Unlock()
	return &Subscription[T]{token: tok, ps: ps, queue: st.queue}
}

// Publish offers v to every subscriber whose Strategy accepts it, blocking
// on each subscriber's queue in turn until ctx is canceled. A slow
// subscriber therefore delays Publish returning, by design: PubSub provides
// no implicit unbounded buffering (spec.md Non-goals).
func (ps *PubSub[T]) Publish(ctx context.Context, v T) error {
	ps.mu.RLock()
	targets := make([]*subscriberState[T], 0)
	for _, st := range ps.subscribers.Seq() {
		if st.queue.IsClosed() {
			continue
		}
		if ps.strategy.Accepts(st.selector, v) {
			targets = append(targets, st)
		}
	}
	ps.mu.RUnlock()

	for _, st := range targets {
		if err := st.queue.Offer(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// TryPublish is Publish's non-blocking counterpart: it drops v for any
// subscriber whose queue currently has no room rather than blocking,
// the delivery mode a Signal's Set uses so that it never blocks on a
// slow Discrete subscriber.
func (ps *PubSub[T]) TryPublish(v T) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, st := range ps.subscribers.Seq() {
		if st.queue.IsClosed() {
			continue
		}
		if ps.strategy.Accepts(st.selector, v) {
			st.queue.TryOffer(v)
		}
	}
}

// Close closes every current subscriber's queue, so pending and future
// Receive calls observe ErrQueueClosed.
func (ps *PubSub[T]) Close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, st := range ps.subscribers.Seq() {
		st.queue.Close()
	}
}

// Signal is a single mutable cell that always holds a current value and
// offers each update to its Discrete subscribers without blocking, the Go
// rendition of spec.md §6's Signal.of. An update is dropped for any
// subscriber whose one-slot queue still holds an earlier update.
type Signal[T any] struct {
	mu  sync.RWMutex
	val T
	ps  *PubSub[T]
}

// SignalOf creates a Signal initialized to v. Named SignalOf rather than
// Of because Go identifiers cannot carry spec.md §6's dotted Signal.of
// form.
func SignalOf[T any](v T) *Signal[T] {
	return &Signal[T]{val: v, ps: NewPubSub[T](BroadcastStrategy[T](), 1)}
}

// Get returns the Signal's current value.
func (sig *Signal[T]) Get() T {
	sig.mu.RLock()
	defer sig.mu.RUnlock()
	return sig.val
}

// Set updates the Signal's current value and offers it to every Discrete
// subscriber, without blocking on a slow one; a subscriber whose queue is
// full does not receive this update.
func (sig *Signal[T]) Set(v T) {
	sig.mu.Lock()
	sig.val = v
	sig.mu.Unlock()
	sig.ps.TryPublish(v)
}

// Discrete returns a Stream that starts with sig's current value and then
// yields the updates Set delivers to this subscriber, the Go rendition of
// fs2's Signal.discrete. Updates that Set makes while this subscriber's
// queue is full are not yielded.
func (sig *Signal[T]) Discrete() Stream[T] {
	sub := sig.ps.Subscribe(nil)
	current := sig.Get()
	return Append(Emit(current), fromPull(Pull[T, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[T, struct{}] {
			_ = sc.RegisterFinalizer(ctx, func(context.Context, ExitCase) error {
				sub.Unsubscribe()
				return nil
			})
			return signalPull(sub).step(ctx, sc)
		},
	}))
}

func signalPull[T any](sub *Subscription[T]) Pull[T, struct{}] {
	return Pull[T, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[T, struct{}] {
			v, err := sub.Receive(ctx)
			if err != nil {
				return stepResult[T, struct{}]{out: outcomeDone, result: struct{}{}}
			}
			return stepResult[T, struct{}]{chunk: ChunkOf(v), next: signalPull(sub), out: outcomeMore}
		},
	}
}

// Topic is a durable publish/subscribe channel that retains no history but
// lets any number of subscribers join independently, each seeing every
// value Publish sends from the moment it subscribed onward, the Go
// rendition of spec.md §6's Topic.make.
type Topic[T any] struct {
	ps *PubSub[T]
}

// TopicMake creates a Topic whose subscribers each get a BoundedQueue of
// the given size. Named TopicMake rather than Make because Go identifiers
// cannot carry spec.md §6's dotted Topic.make form.
func TopicMake[T any](subscriberQueueSize int) *Topic[T] {
	return &Topic[T]{ps: NewPubSub[T](TopicStrategy[T](), subscriberQueueSize)}
}

// Publish sends v to every current subscriber, back-pressuring on the
// slowest one's queue.
func (t *Topic[T]) Publish(ctx context.Context, v T) error {
	return t.ps.Publish(ctx, v)
}

// Subscribe returns a Stream of every value Publish sends from this point
// on.
func (t *Topic[T]) Subscribe() Stream[T] {
	sub := t.ps.Subscribe(func(T) bool { return true })
	return fromPull(Pull[T, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[T, struct{}] {
			_ = sc.RegisterFinalizer(ctx, func(context.Context, ExitCase) error {
				sub.Unsubscribe()
				return nil
			})
			return signalPull(sub).step(ctx, sc)
		},
	})
}

// Close closes every current subscriber of t.
func (t *Topic[T]) Close() {
	t.ps.Close()
}

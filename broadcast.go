package streams

import "context"

// BroadcastThrough runs each of pipes against its own independent view of
// s's elements, concurrently, and interleaves every pipe's output into one
// Stream — the Go rendition of spec.md §4.5's broadcastThrough, built on
// PubSub with BroadcastStrategy rather than a second ad hoc fan-out
// mechanism, so broadcast shares its back-pressure story with every other
// PubSub-based combinator. BroadcastStrategy gives every subscriber a
// one-slot queue regardless of what is requested here, so the publisher
// below cannot finish publishing an element until every pipe has taken the
// previous one, and a fast pipe is at most one element ahead of the
// slowest.
func BroadcastThrough[O, P any](s Stream[O], pipes ...func(Stream[O]) Stream[P]) Stream[P] {
	if len(pipes) == 0 {
		return Empty[P]()
	}
	return fromPull(Pull[P, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[P, struct{}] {
			ps := NewPubSub[Result[O]](BroadcastStrategy[Result[O]](), 0)
			subs := make([]*Subscription[Result[O]], len(pipes))
			for i := range pipes {
				subs[i] = ps.Subscribe(nil)
			}

			publisherScope := sc.Open(true)
			StartTyped(ctx, func(ctx context.Context) (struct{}, error) {
				defer ps.Close()
				lease, ok := publisherScope.Lease()
				if !ok {
					return struct{}{}, nil
				}
				defer lease.Cancel()

				p := s.pull
				for {
					if _, halted := publisherScope.InterruptRequested(); halted {
						return struct{}{}, nil
					}
					r := p.step(ctx, publisherScope)
					switch r.out {
					case outcomeMore:
						for v := range r.chunk.Seq() {
							if err := ps.Publish(ctx, Ok(v)); err != nil {
								return struct{}{}, nil
							}
						}
						p = r.next
					case outcomeDone:
						return struct{}{}, nil
					case outcomeFailed:
						_ = ps.Publish(ctx, Err[O](r.err))
						return struct{}{}, nil
					case outcomeInterrupted:
						return struct{}{}, nil
					}
				}
			})

			branchStreams := make([]Stream[P], len(pipes))
			for i, pipe := range pipes {
				sub := subs[i]
				src := subscriptionStream(sub)
				branchStreams[i] = pipe(src)
			}

			merged := branchStreams[0]
			for _, b := range branchStreams[1:] {
				merged = MergeHaltBoth(merged, b)
			}
			return closeScopesOnTerminal(merged.pull, publisherScope).step(ctx, sc)
		},
	})
}

// subscriptionStream adapts a PubSub Subscription into a Stream, failing
// the Stream if an upstream Err(...) value was broadcast.
func subscriptionStream[O any](sub *Subscription[Result[O]]) Stream[O] {
	return fromPull(Pull[O, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, struct{}] {
			r, err := sub.Receive(ctx)
			if err != nil {
				return stepResult[O, struct{}]{out: outcomeDone, result: struct{}{}}
			}
			if r.IsErr() {
				return stepResult[O, struct{}]{out: outcomeFailed, err: r.Error()}
			}
			return stepResult[O, struct{}]{chunk: ChunkOf(r.Value()), next: subscriptionStream(sub), out: outcomeMore}
		},
	})
}

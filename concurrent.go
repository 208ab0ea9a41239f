package streams

import "context"

// mergeItem is what a branch goroutine hands back through the shared
// queue: either a Chunk of output or a terminal item. done marks the
// terminal item, which carries the branch's error (nil on normal
// completion) and is filtered out before reaching the consumer.
type mergeItem[O any] struct {
	chunk Chunk[O]
	done  bool
	err   error
}

// drainInto runs s to completion inside scope — a real child Scope opened
// off the caller's own scope tree, never a detached NewRootScope — leasing
// scope for the duration of the run (spec.md §4.2 invariant I4) so that if
// an ancestor's Close reaches scope before this branch finishes on its
// own, Close blocks until the lease is released rather than tearing the
// branch's resources down underneath it. It also polls
// scope.InterruptRequested() once per chunk, the cooperative half of the
// same mechanism, so a branch built purely from Output (no Eval) still
// notices external interruption rather than running to completion
// regardless. Returns the branch's terminal error, if any, so the caller
// can decide whether to interrupt its sibling branches.
func drainInto[O any](ctx context.Context, scope *Scope, s Stream[O], q *BoundedQueue[mergeItem[O]]) error {
	lease, ok := scope.Lease()
	if !ok {
		_ = q.Offer(ctx, mergeItem[O]{done: true})
		return nil
	}
	defer lease.Cancel()

	p := s.pull
	for {
		if reason, halted := scope.InterruptRequested(); halted {
			err := reason
			if err == errInterrupted {
				err = nil
			}
			_ = q.Offer(ctx, mergeItem[O]{done: true, err: err})
			return err
		}
		r := p.step(ctx, scope)
		switch r.out {
		case outcomeMore:
			if err := q.Offer(ctx, mergeItem[O]{chunk: r.chunk}); err != nil {
				return nil
			}
			p = r.next
		case outcomeDone:
			_ = q.Offer(ctx, mergeItem[O]{done: true})
			return nil
		case outcomeFailed:
			_ = q.Offer(ctx, mergeItem[O]{done: true, err: r.err})
			return r.err
		case outcomeInterrupted:
			err := r.interruptBy
			if err == errInterrupted {
				err = nil
			}
			_ = q.Offer(ctx, mergeItem[O]{done: true, err: err})
			return err
		}
	}
}

// closeScopesOnTerminal wraps p so that, whichever way p ends, every scope
// in scopes is closed exactly once at that point rather than each branch
// closing its own scope concurrently with the others still running — the
// same single-owner-closes-once discipline WithScope/stepWithin already
// use for a single child scope, generalized to the fixed set of branch
// scopes a merge/parJoin opened.
func closeScopesOnTerminal[O any](p Pull[O, struct{}], scopes ...*Scope) Pull[O, struct{}] {
	return Pull[O, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, struct{}] {
			r := p.step(ctx, sc)
			switch r.out {
			case outcomeMore:
				r.next = closeScopesOnTerminal(r.next, scopes...)
				return r
			case outcomeDone:
				if err := closeAll(ctx, scopes, ExitSucceeded); err != nil {
					return stepResult[O, struct{}]{out: outcomeFailed, err: err}
				}
				return r
			case outcomeFailed:
				_ = closeAll(ctx, scopes, ExitErrored)
				return r
			case outcomeInterrupted:
				_ = closeAll(ctx, scopes, ExitCanceled)
				return r
			}
			return r
		},
	}
}

func closeAll(ctx context.Context, scopes []*Scope, ec ExitCase) error {
	var errs []error
	for _, s := range scopes {
		if err := s.Close(ctx, ec); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return NewCompositeFailure(errs[0], errs[1:]...)
}

// mergeMode controls when a merged Stream stops relative to its two
// branches finishing, matching spec.md's merge/mergeHaltL/mergeHaltR/
// mergeHaltBoth family.
type mergeMode int

const (
	// haltOnBoth waits for both branches to finish (plain merge).
	haltOnBoth mergeMode = iota
	// haltOnEither stops as soon as either branch finishes.
	haltOnEither
	// haltOnLeft stops as soon as the left branch finishes.
	haltOnLeft
	// haltOnRight stops as soon as the right branch finishes.
	haltOnRight
)

// mergeStreams is the shared engine behind Merge/MergeHaltL/MergeHaltR/
// MergeHaltBoth: it opens left and right each their own interruptible
// child scope of the caller's scope sc (spec.md §5: "cancellation is
// always expressed as scope interruption"), races them via Runtime-started
// Fibers fanning their output into one queue, and applies first-error-wins
// cancellation by interrupting the sibling's scope directly rather than a
// bare context.CancelFunc — grounded on bradenaw/juniper's stream.Merge
// (atomic "last one out" bookkeeping, Pipe-style back-pressured hand-off)
// as vendored in rclone, adapted onto the Scope tree instead of a raw
// context.
func mergeStreams[O any](left, right Stream[O], mode mergeMode) Stream[O] {
	return fromPull(Pull[O, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, struct{}] {
			leftScope := sc.Open(true)
			rightScope := sc.Open(true)
			q := NewBoundedQueue[mergeItem[O]](16)

			runBranch := func(s Stream[O], scope, other *Scope, isLeft bool) Task[struct{}] {
				return func(ctx context.Context) (struct{}, error) {
					err := drainInto(ctx, scope, s, q)
					switch {
					case err != nil:
						other.Interrupt(err)
					case mode == haltOnEither:
						other.Interrupt(nil)
					case mode == haltOnLeft && isLeft:
						other.Interrupt(nil)
					case mode == haltOnRight && !isLeft:
						other.Interrupt(nil)
					}
					return struct{}{}, nil
				}
			}

			leftFiber := StartTyped(ctx, runBranch(left, leftScope, rightScope, true))
			rightFiber := StartTyped(ctx, runBranch(right, rightScope, leftScope, false))
			go func() {
				_, _ = leftFiber.Join(ctx)
				_, _ = rightFiber.Join(ctx)
				q.Close()
			}()

			return closeScopesOnTerminal(pullFromQueue(q), leftScope, rightScope).step(ctx, sc)
		},
	})
}

// pullFromQueue builds the Pull that repeatedly Takes from q, surfacing the
// first error it observes and stopping once q reports closed-and-drained.
func pullFromQueue[O any](q *BoundedQueue[mergeItem[O]]) Pull[O, struct{}] {
	return Pull[O, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, struct{}] {
			for {
				item, err := q.Take(ctx)
				if err != nil {
					return stepResult[O, struct{}]{out: outcomeDone, result: struct{}{}}
				}
				if item.done {
					if item.err != nil {
						return stepResult[O, struct{}]{out: outcomeFailed, err: item.err}
					}
					continue
				}
				return stepResult[O, struct{}]{chunk: item.chunk, next: pullFromQueue[O](q), out: outcomeMore}
			}
		},
	}
}

// Merge interleaves the output of left and right as it arrives, ending once
// both have completed normally. The first error from either side fails the
// merged Stream immediately.
func Merge[O any](left, right Stream[O]) Stream[O] {
	return mergeStreams(left, right, haltOnBoth)
}

// MergeHaltBoth is an alias for Merge, named to match spec.md's family of
// merge combinators explicitly.
func MergeHaltBoth[O any](left, right Stream[O]) Stream[O] {
	return mergeStreams(left, right, haltOnBoth)
}

// MergeHaltL interleaves left and right, stopping as soon as left finishes
// (even if right has more output left to produce).
func MergeHaltL[O any](left, right Stream[O]) Stream[O] {
	return mergeStreams(left, right, haltOnLeft)
}

// MergeHaltR interleaves left and right, stopping as soon as right
// finishes.
func MergeHaltR[O any](left, right Stream[O]) Stream[O] {
	return mergeStreams(left, right, haltOnRight)
}

// Concurrently runs background alongside s: background's output is
// discarded, but if background fails, s is interrupted and the failure
// propagates; if s finishes first, background's Fiber is canceled.
// Matches spec.md's concurrently combinator.
func Concurrently[O, B any](s Stream[O], background Stream[B]) Stream[O] {
	return fromPull(Pull[O, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, struct{}] {
			child := sc.Open(true)
			fiber := StartTyped(ctx, func(ctx context.Context) (struct{}, error) {
				if err := Compile(background).Drain(ctx); err != nil {
					child.Interrupt(err)
				}
				return struct{}{}, nil
			})
			_ = child.RegisterFinalizer(ctx, func(context.Context, ExitCase) error {
				fiber.Cancel()
				return nil
			})
			return stepWithin(ctx, child, s.pull)
		},
	})
}

// Observe runs sink alongside s purely for effect (e.g. metrics, logging),
// passing every element of s through unchanged, and fails the whole Stream
// if sink fails. Matches spec.md's observe combinator.
func Observe[O any](s Stream[O], sink func(O) error) Stream[O] {
	return FlatMapStream(s, func(v O) Stream[O] {
		return fromPull(BindPull(EvalPull[O, struct{}](func(ctx context.Context) (struct{}, error) {
			return struct{}{}, sink(v)
		}), func(struct{}) Pull[O, struct{}] {
			return Output(ChunkOf(v))
		}))
	})
}

// parJoinItem carries one inner stream's outcome back to the fan-in loop,
// mirroring mergeItem but for an arbitrary, dynamically sized set of
// branches.
type parJoinItem[O any] = mergeItem[O]

// ParJoin flattens a Stream of Streams, running up to maxOpen of the inner
// streams concurrently, each inside its own interruptible child scope of
// the caller's scope sc, and interleaving their output as it arrives. The
// first inner failure interrupts every other open branch's scope directly
// and propagates, the Go rendition of spec.md §5's "leader/follower"
// error-and-cancel model, grounded on the teacher's parallel.go semaphore
// pattern (sem := make(chan struct{}, n)) for bounding concurrency and on
// bradenaw/juniper's Merge for the fan-in/first-error-wins core, both
// adapted to drive through the Scope tree instead of a bare context.
func ParJoin[O any](maxOpen int, streams Stream[Stream[O]]) Stream[O] {
	if maxOpen <= 0 {
		maxOpen = 1
	}
	return fromPull(Pull[O, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, struct{}] {
			outerScope := sc.Open(true)
			outer, err := Compile(streams).ToSlice(ctx)
			if err != nil {
				_ = outerScope.Close(ctx, ExitErrored)
				return stepResult[O, struct{}]{out: outcomeFailed, err: err}
			}
			if len(outer) == 0 {
				_ = outerScope.Close(ctx, ExitSucceeded)
				return stepResult[O, struct{}]{out: outcomeDone, result: struct{}{}}
			}

			q := NewBoundedQueue[parJoinItem[O]](maxOpen * 2)
			sem := make(chan struct{}, maxOpen)
			branchScopes := make([]*Scope, len(outer))
			fibers := make([]*Fiber[struct{}], len(outer))

			interruptAll := func(err error) {
				for _, bs := range branchScopes {
					bs.Interrupt(err)
				}
			}

			for i, inner := range outer {
				branchScopes[i] = outerScope.Open(true)
				innerStream, branchScope := inner, branchScopes[i]
				fibers[i] = StartTyped(ctx, func(ctx context.Context) (struct{}, error) {
					sem <- struct{}{}
					defer func() { <-sem }()
					if err := drainInto(ctx, branchScope, innerStream, q); err != nil {
						interruptAll(err)
					}
					return struct{}{}, nil
				})
			}

			go func() {
				for _, f := range fibers {
					_, _ = f.Join(ctx)
				}
				q.Close()
			}()

			all := append([]*Scope{outerScope}, branchScopes...)
			return closeScopesOnTerminal(pullFromQueue(q), all...).step(ctx, sc)
		},
	})
}

package streams

import "context"

// stepUntilOutput advances p until it either yields a non-empty chunk or
// reaches a terminal outcome, the Go rendition of spec.md §4.3's Step
// instruction semantics ("run inner until first Output or completion").
func stepUntilOutput[X any](ctx context.Context, sc *Scope, p Pull[X, struct{}]) stepResult[X, struct{}] {
	for {
		r := p.step(ctx, sc)
		if r.out == outcomeMore && r.chunk.IsEmpty() {
			p = r.next
			continue
		}
		return r
	}
}

// StepLeg is the result of successfully stepping a Pull once: the chunk it
// produced, the Scope it ran in, and its continuation. Resuming via Next
// routes back through that same Scope by Token, the Go rendition of
// spec.md §4.4's StepLeg (head, scopeId, tail).
type StepLeg[O any] struct {
	Head  Chunk[O]
	Scope *Scope
	tail  Pull[O, struct{}]
}

// Step runs inner until its first Output or completion, resolving the
// scope to resume in by looking up scopeTok (via Scope.FindStepScope) when
// it is non-nil, or using the calling Scope directly otherwise. This is the
// Go rendition of spec.md §4.3's `Step(inner, optScopeId)` instruction: the
// non-nil path is what lets `StepLeg.Next` safely resume a Pull that was
// uncons'd in a different branch of the scope tree than the one now
// calling it, rejecting the lookup with ErrScopeLookupFailure rather than
// silently running in the wrong scope (spec.md §5's "use stepLeg for
// cross-fiber pulls").
func Step[X, O any](inner Pull[X, struct{}], scopeTok *Token) Pull[O, Optional[StepLeg[X]]] {
	return Pull[O, Optional[StepLeg[X]]]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, Optional[StepLeg[X]]] {
			target := sc
			if scopeTok != nil {
				found, err := sc.FindStepScope(*scopeTok)
				if err != nil {
					return stepResult[O, Optional[StepLeg[X]]]{out: outcomeFailed, err: err}
				}
				target = found
			}
			r := stepUntilOutput(ctx, target, inner)
			switch r.out {
			case outcomeMore:
				leg := StepLeg[X]{Head: r.chunk, Scope: target, tail: r.next}
				return stepResult[O, Optional[StepLeg[X]]]{out: outcomeDone, result: Some(leg)}
			case outcomeDone:
				return stepResult[O, Optional[StepLeg[X]]]{out: outcomeDone, result: None[StepLeg[X]]()}
			case outcomeFailed:
				return stepResult[O, Optional[StepLeg[X]]]{out: outcomeFailed, err: r.err}
			case outcomeInterrupted:
				return stepResult[O, Optional[StepLeg[X]]]{out: outcomeInterrupted, interruptBy: r.interruptBy}
			}
			return stepResult[O, Optional[StepLeg[X]]]{out: outcomeFailed, err: ErrScopeLookupFailure}
		},
	}
}

// Next resumes this leg's tail, routing through the same Scope it
// originally ran in via Step's Token-lookup path.
func (leg StepLeg[O]) Next() Pull[struct{}, Optional[StepLeg[O]]] {
	tok := leg.Scope.Token()
	return Step[O, struct{}](leg.tail, &tok)
}

// Uncons pulls exactly one chunk from s, returning it together with the
// remaining Stream, or None if s had already finished. This is `Step(s,
// None)` with the intermediate scope Token discarded, the Go rendition of
// spec.md §4.4's `s.uncons`.
func Uncons[O any](s Stream[O]) Pull[struct{}, Optional[Pair[Chunk[O], Stream[O]]]] {
	return MapPullResult(Step[O, struct{}](s.pull, nil), func(opt Optional[StepLeg[O]]) Optional[Pair[Chunk[O], Stream[O]]] {
		if opt.IsEmpty() {
			return None[Pair[Chunk[O], Stream[O]]]()
		}
		leg := opt.Get()
		return Some(Pair[Chunk[O], Stream[O]]{First: leg.Head, Second: fromPull(leg.tail)})
	})
}

// StepLegOf starts a StepLeg walk over s, for callers (like Zip) that need
// to repeatedly resume the same tail in its original Scope rather than
// uncons-ing fresh each time.
func StepLegOf[O any](s Stream[O]) Pull[struct{}, Optional[StepLeg[O]]] {
	return Step[O, struct{}](s.pull, nil)
}

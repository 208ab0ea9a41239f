package streams

import "context"

// ZipWith pairs elements of a and b position-wise, combining each pair with
// fn, and ends as soon as either input ends. Each side is advanced through
// StepLegOf/StepLeg.Next (spec.md §4.4's stepLeg), so resuming a or b
// always routes back through the Scope it last produced a chunk in via
// Step's Token-lookup path (Scope.FindStepScope) instead of assuming both
// sides share one scope — the property uncons alone cannot guarantee once
// a and b have run through different branches of the scope tree.
func ZipWith[A, B, C any](a Stream[A], b Stream[B], fn func(A, B) C) Stream[C] {
	return fromPull(zipWithPull[A, B, C](nil, StepLegOf(a), nil, StepLegOf(b), fn))
}

// Zip pairs elements of a and b position-wise into Pairs, ending as soon as
// either input ends.
func Zip[A, B any](a Stream[A], b Stream[B]) Stream[Pair[A, B]] {
	return ZipWith(a, b, func(x A, y B) Pair[A, B] { return Pair[A, B]{First: x, Second: y} })
}

func zipWithPull[A, B, C any](
	aBuf []A, aLeg Pull[struct{}, Optional[StepLeg[A]]],
	bBuf []B, bLeg Pull[struct{}, Optional[StepLeg[B]]],
	fn func(A, B) C,
) Pull[C, struct{}] {
	return Pull[C, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[C, struct{}] {
			for len(aBuf) == 0 {
				r := aLeg.step(ctx, sc)
				switch r.out {
				case outcomeFailed:
					return stepResult[C, struct{}]{out: outcomeFailed, err: r.err}
				case outcomeInterrupted:
					return stepResult[C, struct{}]{out: outcomeInterrupted, interruptBy: r.interruptBy}
				case outcomeDone:
					if r.result.IsEmpty() {
						return stepResult[C, struct{}]{out: outcomeDone, result: struct{}{}}
					}
					leg := r.result.Get()
					aBuf = leg.Head.ToSlice()
					aLeg = leg.Next()
				default:
					return stepResult[C, struct{}]{out: outcomeFailed, err: ErrScopeLookupFailure}
				}
			}
			for len(bBuf) == 0 {
				r := bLeg.step(ctx, sc)
				switch r.out {
				case outcomeFailed:
					return stepResult[C, struct{}]{out: outcomeFailed, err: r.err}
				case outcomeInterrupted:
					return stepResult[C, struct{}]{out: outcomeInterrupted, interruptBy: r.interruptBy}
				case outcomeDone:
					if r.result.IsEmpty() {
						return stepResult[C, struct{}]{out: outcomeDone, result: struct{}{}}
					}
					leg := r.result.Get()
					bBuf = leg.Head.ToSlice()
					bLeg = leg.Next()
				default:
					return stepResult[C, struct{}]{out: outcomeFailed, err: ErrScopeLookupFailure}
				}
			}
			n := len(aBuf)
			if len(bBuf) < n {
				n = len(bBuf)
			}
			out := make([]C, n)
			for i := 0; i < n; i++ {
				out[i] = fn(aBuf[i], bBuf[i])
			}
			return stepResult[C, struct{}]{
				chunk: NewChunk(out),
				next:  zipWithPull(aBuf[n:], aLeg, bBuf[n:], bLeg, fn),
				out:   outcomeMore,
			}
		},
	}
}

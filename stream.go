package streams

import "context"

// Stream[O] is a Pull that never produces a meaningful result, only output
// chunks and eventual completion — spec.md §4.4's "Stream[F,O] is a newtype
// over Pull[F,O,Unit]" rendered as a struct wrapping that Pull.
type Stream[O any] struct {
	pull Pull[O, struct{}]
}

func fromPull[O any](p Pull[O, struct{}]) Stream[O] {
	return Stream[O]{pull: p}
}

// Empty returns the Stream that produces no output.
func Empty[O any]() Stream[O] {
	return fromPull(Done[O, struct{}](struct{}{}))
}

// Emit returns a Stream producing exactly one element.
func Emit[O any](v O) Stream[O] {
	return fromPull(Output(ChunkOf(v)))
}

// EmitChunk returns a Stream producing exactly the elements of chunk, as a
// single Chunk.
func EmitChunk[O any](chunk Chunk[O]) Stream[O] {
	return fromPull(Output(chunk))
}

// EmitAll returns a Stream producing each element of vs, as a single Chunk.
func EmitAll[O any](vs ...O) Stream[O] {
	return EmitChunk(NewChunk(vs))
}

// FromSlice returns a Stream producing every element of vs in order, as a
// single Chunk (without copying vs).
func FromSlice[O any](vs []O) Stream[O] {
	return EmitChunk(NewChunk(vs))
}

// Eval lifts a Task into a single-element Stream: the task's result is
// emitted once, and a task error fails the Stream.
func Eval[O any](t Task[O]) Stream[O] {
	return fromPull(BindPull(EvalPull[O, O](t), func(v O) Pull[O, struct{}] {
		return Output(ChunkOf(v))
	}))
}

// Exec lifts a Task run purely for effect into a Stream producing no
// output.
func Exec(t Task[struct{}]) Stream[struct{}] {
	return fromPull(MapPullResult(EvalPull[struct{}, struct{}](t), func(struct{}) struct{} { return struct{}{} }))
}

// Append concatenates two streams: every element of s, then every element
// of next.
func Append[O any](s Stream[O], next Stream[O]) Stream[O] {
	return fromPull(BindPull(s.pull, func(struct{}) Pull[O, struct{}] { return next.pull }))
}

// Concat concatenates any number of streams in order.
func Concat[O any](streams ...Stream[O]) Stream[O] {
	result := Empty[O]()
	for _, s := range streams {
		result = Append(result, s)
	}
	return result
}

// FlatMapStream maps each element of s to a Stream and concatenates the
// results in order, the Go rendition of spec.md §4.4's flatMap. Implemented
// as a free function (rather than a generic method) because Go forbids a
// struct method from introducing a second type parameter beyond the
// receiver's own — the same constraint the teacher works around with free
// functions like FlatMapSeq/GroupBy.
func FlatMapStream[O, P any](s Stream[O], f func(O) Stream[P]) Stream[P] {
	return fromPull(flatMapPull(s.pull, f))
}

// flatMapPull drives p one chunk at a time through Uncons (spec.md §4.4's
// uncons, §4.3's Step instruction with no scope Token) rather than stepping
// p's own closure directly, so every flatMap — and every combinator built
// on it (MapStream, FilterStream) — runs through the same Step interpreter
// the rest of the Pull instruction set uses.
func flatMapPull[O, P any](p Pull[O, struct{}], f func(O) Stream[P]) Pull[P, struct{}] {
	return resultToOutputPull(Uncons(fromPull(p)), func(opt Optional[Pair[Chunk[O], Stream[O]]]) Pull[P, struct{}] {
		if opt.IsEmpty() {
			return Done[P, struct{}](struct{}{})
		}
		pr := opt.Get()
		inner := Empty[P]()
		for v := range pr.First.Seq() {
			inner = Append(inner, f(v))
		}
		rest := fromPull(flatMapPull(pr.Second.pull, f))
		return Append(inner, rest).pull
	})
}

// resultToOutputPull is BindPull's counterpart for the case where p itself
// emits no output (its O is struct{}, as Step/Uncons's Pulls always are)
// but f's continuation needs a different output type P. BindPull cannot
// express this because it keeps the same O across p and f's result
// (pull.go's BindPull signature), so this is the minimal free function
// that can.
func resultToOutputPull[R, P any](p Pull[struct{}, R], f func(R) Pull[P, struct{}]) Pull[P, struct{}] {
	return Pull[P, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[P, struct{}] {
			r := p.step(ctx, sc)
			switch r.out {
			case outcomeMore:
				return resultToOutputPull(r.next, f).step(ctx, sc)
			case outcomeDone:
				return f(r.result).step(ctx, sc)
			case outcomeFailed:
				return stepResult[P, struct{}]{out: outcomeFailed, err: r.err}
			case outcomeInterrupted:
				return stepResult[P, struct{}]{out: outcomeInterrupted, interruptBy: r.interruptBy}
			}
			return stepResult[P, struct{}]{out: outcomeFailed, err: ErrScopeLookupFailure}
		},
	}
}

// MapStream transforms every element of s with f. Free function for the
// same reason as FlatMapStream.
func MapStream[O, P any](s Stream[O], f func(O) P) Stream[P] {
	return FlatMapStream(s, func(v O) Stream[P] { return Emit(f(v)) })
}

// FilterStream keeps only the elements of s satisfying pred.
func FilterStream[O any](s Stream[O], pred func(O) bool) Stream[O] {
	return FlatMapStream(s, func(v O) Stream[O] {
		if pred(v) {
			return Emit(v)
		}
		return Empty[O]()
	})
}

// Take returns a Stream yielding at most n elements of s.
func Take[O any](s Stream[O], n int) Stream[O] {
	return fromPull(takePull(s.pull, n))
}

func takePull[O any](p Pull[O, struct{}], n int) Pull[O, struct{}] {
	if n <= 0 {
		return Done[O, struct{}](struct{}{})
	}
	return Pull[O, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, struct{}] {
			r := p.step(ctx, sc)
			if r.out != outcomeMore {
				return r
			}
			chunk := r.chunk
			if chunk.Size() > n {
				chunk = chunk.Take(n)
				return stepResult[O, struct{}]{chunk: chunk, next: Done[O, struct{}](struct{}{}), out: outcomeMore}
			}
			remaining := n - chunk.Size()
			return stepResult[O, struct{}]{chunk: chunk, next: takePull(r.next, remaining), out: outcomeMore}
		},
	}
}

// Drop returns a Stream skipping the first n elements of s.
func Drop[O any](s Stream[O], n int) Stream[O] {
	return fromPull(dropPull(s.pull, n))
}

func dropPull[O any](p Pull[O, struct{}], n int) Pull[O, struct{}] {
	if n <= 0 {
		return p
	}
	return Pull[O, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, struct{}] {
			r := p.step(ctx, sc)
			if r.out != outcomeMore {
				return r
			}
			if r.chunk.Size() <= n {
				return dropPull(r.next, n-r.chunk.Size()).step(ctx, sc)
			}
			return stepResult[O, struct{}]{chunk: r.chunk.Drop(n), next: r.next, out: outcomeMore}
		},
	}
}

// TakeWhile returns a Stream yielding elements of s until pred first
// returns false.
func TakeWhile[O any](s Stream[O], pred func(O) bool) Stream[O] {
	return fromPull(takeWhilePull(s.pull, pred))
}

func takeWhilePull[O any](p Pull[O, struct{}], pred func(O) bool) Pull[O, struct{}] {
	return Pull[O, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, struct{}] {
			r := p.step(ctx, sc)
			if r.out != outcomeMore {
				return r
			}
			kept := make([]O, 0, r.chunk.Size())
			stopped := false
			for v := range r.chunk.Seq() {
				if !pred(v) {
					stopped = true
					break
				}
				kept = append(kept, v)
			}
			if stopped {
				return stepResult[O, struct{}]{chunk: NewChunk(kept), next: Done[O, struct{}](struct{}{}), out: outcomeMore}
			}
			return stepResult[O, struct{}]{chunk: NewChunk(kept), next: takeWhilePull(r.next, pred), out: outcomeMore}
		},
	}
}

// HandleErrorWith recovers a failed Stream by switching to the Stream
// produced by handler, the Go rendition of spec.md §4.4's error recovery
// combinator.
func HandleErrorWith[O any](s Stream[O], handler func(error) Stream[O]) Stream[O] {
	return fromPull(handleErrorPull(s.pull, handler))
}

func handleErrorPull[O any](p Pull[O, struct{}], handler func(error) Stream[O]) Pull[O, struct{}] {
	return Pull[O, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, struct{}] {
			r := p.step(ctx, sc)
			switch r.out {
			case outcomeMore:
				return stepResult[O, struct{}]{chunk: r.chunk, next: handleErrorPull(r.next, handler), out: outcomeMore}
			case outcomeFailed:
				return handler(r.err).pull.step(ctx, sc)
			default:
				return r
			}
		},
	}
}

// Attempt converts a Stream's eventual failure into a value rather than
// propagating it, yielding Result[O] per element and a final Err if the
// underlying stream fails. It matches spec.md §4.4's attempt combinator.
func Attempt[O any](s Stream[O]) Stream[Result[O]] {
	mapped := MapStream(s, func(v O) Result[O] { return Ok(v) })
	return HandleErrorWith(mapped, func(err error) Stream[Result[O]] {
		return Emit(Err[O](err))
	})
}

// BracketCase acquires a resource with acquire, runs use(resource) as the
// body Stream, and guarantees release runs exactly once with the ExitCase
// describing how the body ended — normal completion, failure, or
// interruption — matching spec.md §4.4's bracketCase.
func BracketCase[R, O any](acquire Task[R], use func(R) Stream[O], release func(ctx context.Context, ec ExitCase, r R) error) Stream[O] {
	acquireP := AcquirePull[O, R](acquire, release)
	return fromPull(BindPull(acquireP, func(r R) Pull[O, struct{}] {
		return use(r).pull
	}))
}

// Bracket is BracketCase with a release function that does not need to
// observe the ExitCase.
func Bracket[R, O any](acquire Task[R], use func(R) Stream[O], release func(ctx context.Context, r R) error) Stream[O] {
	return BracketCase(acquire, use, func(ctx context.Context, _ ExitCase, r R) error {
		return release(ctx, r)
	})
}

// Scoped runs s inside a freshly opened, non-interruptible child scope,
// closing it (running any finalizers bracket registered) as soon as s
// completes — the Go rendition of spec.md §4.4's scope combinator.
func Scoped[O any](s Stream[O]) Stream[O] {
	return fromPull(WithScope(s.pull, false))
}

// InterruptScope is like Scoped but marks the opened scope as an
// interruption boundary, so InterruptWhen (or an external Scope.Interrupt
// call) targeting it stops s without affecting any enclosing scope.
func InterruptScope[O any](s Stream[O]) Stream[O] {
	return fromPull(WithScope(s.pull, true))
}

// InterruptWhen runs s inside an interruptible scope and races it against
// haltOn: if haltOn completes before s does, s is interrupted and the
// Stream ends (successfully if haltOn yielded a nil error, or with that
// error otherwise). This is the combinator spec.md §5/§6 names as how
// external cancellation and timeouts (composed with Sleep) are expressed.
func InterruptWhen[O any](s Stream[O], haltOn Task[error]) Stream[O] {
	return fromPull(Pull[O, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, struct{}] {
			child := sc.Open(true)
			watchCtx, cancelWatch := context.WithCancel(ctx)
			_ = child.RegisterFinalizer(ctx, func(context.Context, ExitCase) error { cancelWatch(); return nil })
			go func() {
				reason, err := haltOn(watchCtx)
				if err != nil && err != context.Canceled {
					child.Interrupt(err)
					return
				}
				child.Interrupt(reason)
			}()
			return stepWithin(ctx, child, s.pull)
		},
	})
}

// Middleware wraps a Task, letting Translate reinterpret every effect a
// Pull performs — the Go rendition of spec.md §4.4's translate (F ~> G
// natural transformation), concretized as "wrap every Task with an
// adapter" since pullstream fixes the effect type to Task[T] instead of
// abstracting over it.
type Middleware func(next Task[any]) Task[any]

// Translate rewrites every Eval and Acquire instruction already built into
// s, the Go rendition of spec.md §4.4's translate: "walk the Pull
// rewriting Eval(fx)→Eval(fk(fx)) and Acquire(...), preserving all
// non-effect nodes". Rather than walking an instruction graph (Pull has
// none — it is a step closure), Translate installs mw into the context
// every step of s runs with; EvalPull and AcquirePull consult it from
// there, so every effect s performs, now or in its continuation, is
// rewritten, while Output/Done/Fail and every other non-effect node run
// unchanged.
func Translate[O any](s Stream[O], mw Middleware) Stream[O] {
	return fromPull(translatePull(s.pull, mw))
}

func translatePull[O, R any](p Pull[O, R], mw Middleware) Pull[O, R] {
	return Pull[O, R]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, R] {
			r := p.step(withMiddleware(ctx, mw), sc)
			if r.out == outcomeMore {
				r.next = translatePull(r.next, mw)
			}
			return r
		},
	}
}

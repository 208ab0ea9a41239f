package streams

import "context"

// outcome tags how a single step of a Pull program ended, the Go rendition
// of spec.md §4.3's three-way Result (Pure/Fail/Interrupted) plus the
// "more output, not finished yet" case that makes Pull incremental rather
// than all-or-nothing.
type outcome int

const (
	outcomeMore outcome = iota
	outcomeDone
	outcomeFailed
	outcomeInterrupted
)

// Pull[O, R] is a single step of a producer: run once, it yields at most
// one Chunk[O] of output together with either a continuation (more output
// may follow) or a terminal outcome carrying a result R, an error, or an
// interruption reason. Stream[O] is Pull[O, struct{}] under a different
// name (spec.md §4.4): a Stream never produces a meaningful result, only
// output and eventual completion.
//
// Internally a Pull is a step closure, exactly the shape the teacher's
// Stream[T] already uses (stream.go's seq iter.Seq[T] closures); the
// generalization is that the closure also threads a *Scope for resource
// management and reports Fail/Interrupted explicitly instead of simply
// stopping iteration.
type Pull[O, R any] struct {
	step func(ctx context.Context, sc *Scope) stepResult[O, R]
}

type stepResult[O, R any] struct {
	chunk       Chunk[O]
	next        Pull[O, R]
	out         outcome
	result      R
	err         error
	interruptBy error
}

// Done returns a Pull that produces no further output and completes with
// result r.
func Done[O, R any](r R) Pull[O, R] {
	return Pull[O, R]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, R] {
			return stepResult[O, R]{out: outcomeDone, result: r}
		},
	}
}

// Fail returns a Pull that fails immediately with err.
func Fail[O, R any](err error) Pull[O, R] {
	return Pull[O, R]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, R] {
			return stepResult[O, R]{out: outcomeFailed, err: err}
		},
	}
}

// Output returns a Pull that emits chunk once and then completes.
func Output[O any](chunk Chunk[O]) Pull[O, struct{}] {
	return Pull[O, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, struct{}] {
			return stepResult[O, struct{}]{chunk: chunk, next: Done[O, struct{}](struct{}{}), out: outcomeMore}
		},
	}
}

// translateMiddlewareKey is the private context key Translate installs a
// Middleware under, so EvalPull and AcquirePull can find it without either
// of them needing a Middleware parameter of their own.
type translateMiddlewareKey struct{}

// withMiddleware returns a context carrying mw, consulted by EvalPull and
// AcquirePull's effect calls.
func withMiddleware(ctx context.Context, mw Middleware) context.Context {
	return context.WithValue(ctx, translateMiddlewareKey{}, mw)
}

// applyMiddleware wraps t with whatever Middleware Translate installed into
// ctx, if any, the mechanism underlying spec.md §4.4's "translate rewrites
// Eval(fx) to Eval(fk(fx))": fk is the Middleware, and this is where an
// Eval or Acquire instruction actually consults it at the moment it runs
// its effect, rather than at Pull-construction time.
func applyMiddleware[R any](ctx context.Context, t Task[R]) Task[R] {
	mw, ok := ctx.Value(translateMiddlewareKey{}).(Middleware)
	if !ok {
		return t
	}
	wrapped := mw(func(ctx context.Context) (any, error) {
		return t(ctx)
	})
	return func(ctx context.Context) (R, error) {
		v, err := wrapped(ctx)
		if err != nil {
			var zero R
			return zero, err
		}
		return v.(R), nil
	}
}

// EvalPull lifts a Task into a Pull that emits no output and completes with
// the task's result, failing the Pull if the task errors. It is the Go
// rendition of spec.md §4.3's Eval instruction.
func EvalPull[O, R any](t Task[R]) Pull[O, R] {
	return Pull[O, R]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, R] {
			if boundary := sc.FindInterruptibleAncestor(); boundary != nil {
				if reason, interrupted := boundary.InterruptRequested(); interrupted {
					return stepResult[O, R]{out: outcomeInterrupted, interruptBy: reason}
				}
			}
			v, err := applyMiddleware(ctx, t)(ctx)
			if err != nil {
				return stepResult[O, R]{out: outcomeFailed, err: WrapUserError(err)}
			}
			return stepResult[O, R]{out: outcomeDone, result: v}
		},
	}
}

// AcquirePull runs acquire, registers release against the current scope so
// it runs (in LIFO order, with the correct ExitCase) when that scope
// closes, and completes with the acquired resource. It is the Go rendition
// of spec.md §4.3's Acquire instruction. Both acquire and release are run
// through whatever Middleware is installed in ctx at acquire time, matching
// spec.md §4.4's translate obligation to rewrite Acquire the same way it
// rewrites Eval.
func AcquirePull[O, R any](acquire Task[R], release func(ctx context.Context, ec ExitCase, r R) error) Pull[O, R] {
	return Pull[O, R]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, R] {
			mw, hasMW := ctx.Value(translateMiddlewareKey{}).(Middleware)
			v, err := applyMiddleware(ctx, acquire)(ctx)
			if err != nil {
				return stepResult[O, R]{out: outcomeFailed, err: WrapUserError(err)}
			}
			regErr := sc.RegisterFinalizer(ctx, func(ctx context.Context, ec ExitCase) error {
				rel := func(ctx context.Context) (struct{}, error) {
					return struct{}{}, release(ctx, ec, v)
				}
				if hasMW {
					rel = applyMiddleware(withMiddleware(ctx, mw), rel)
				}
				_, err := rel(ctx)
				return err
			})
			if regErr != nil {
				return stepResult[O, R]{out: outcomeFailed, err: regErr}
			}
			return stepResult[O, R]{out: outcomeDone, result: v}
		},
	}
}

// GetScopePull returns the Scope the Pull is currently running in, for
// combinators (StepLeg, interruptScope) that need to introspect or target
// it directly.
func GetScopePull[O any]() Pull[O, *Scope] {
	return Pull[O, *Scope]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, *Scope] {
			return stepResult[O, *Scope]{out: outcomeDone, result: sc}
		},
	}
}

// WithScope runs p inside a freshly opened child scope of whatever scope it
// is given, closing that child scope (running its finalizers) once p
// completes, fails, or is interrupted — whichever happens first. This is
// the Go rendition of spec.md §4.3's OpenScope/CloseScope instruction pair,
// collapsed into one combinator since pullstream never needs to keep a
// scope open past the Pull that owns it.
func WithScope[O, R any](p Pull[O, R], interruptible bool) Pull[O, R] {
	return Pull[O, R]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, R] {
			child := sc.Open(interruptible)
			return stepWithin(ctx, child, p)
		},
	}
}

// stepWithin advances p once inside scope, closing scope with the right
// ExitCase once p reaches a terminal outcome, and otherwise rewrapping the
// continuation so later steps keep running inside the same scope.
func stepWithin[O, R any](ctx context.Context, scope *Scope, p Pull[O, R]) stepResult[O, R] {
	r := p.step(ctx, scope)
	switch r.out {
	case outcomeMore:
		cont := r.next
		r.next = Pull[O, R]{
			step: func(ctx context.Context, _ *Scope) stepResult[O, R] {
				return stepWithin(ctx, scope, cont)
			},
		}
		return r
	case outcomeDone:
		if err := scope.Close(ctx, ExitSucceeded); err != nil {
			return stepResult[O, R]{out: outcomeFailed, err: err}
		}
		return r
	case outcomeFailed:
		closeErr := scope.Close(ctx, ExitErrored)
		if closeErr != nil {
			r.err = NewCompositeFailure(r.err, closeErr)
		}
		return r
	case outcomeInterrupted:
		_ = scope.Close(ctx, ExitCanceled)
		return r
	}
	return r
}

// BindPull sequences p, then passes its result to f to obtain the next
// Pull to run, flattening the two into one. f's argument type X is known
// only at the call site, so BindPull cannot be expressed as a method (Go
// disallows additional type parameters on interface/struct methods) and is
// instead a generic free function; X stays statically typed and nothing is
// erased to any. This is exactly as the teacher's free functions
// (FoldTo, GroupBy, Zip3) already work around the same limitation for
// type-changing Stream operations.
func BindPull[O, X, R any](p Pull[O, X], f func(X) Pull[O, R]) Pull[O, R] {
	return Pull[O, R]{
		step: func(ctx context.Context, sc *Scope) stepResult[O, R] {
			r := p.step(ctx, sc)
			switch r.out {
			case outcomeMore:
				chunk := r.chunk
				contP := r.next
				return stepResult[O, R]{
					chunk: chunk,
					next:  BindPull(contP, f),
					out:   outcomeMore,
				}
			case outcomeDone:
				return f(r.result).step(ctx, sc)
			case outcomeFailed:
				return stepResult[O, R]{out: outcomeFailed, err: r.err}
			case outcomeInterrupted:
				return stepResult[O, R]{out: outcomeInterrupted, interruptBy: r.interruptBy}
			}
			return stepResult[O, R]{out: outcomeFailed, err: ErrScopeLookupFailure}
		},
	}
}

// MapPullResult transforms a Pull's result without affecting its output.
func MapPullResult[O, X, R any](p Pull[O, X], f func(X) R) Pull[O, R] {
	return BindPull(p, func(x X) Pull[O, R] { return Done[O, R](f(x)) })
}

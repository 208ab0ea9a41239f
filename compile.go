package streams

import "context"

// compiler is the namespace for Stream's terminal operations — running a
// Pull program to completion inside a fresh root Scope and extracting a
// result. It is named "compile" after spec.md §6's compile.* external
// interface (compile.drain, compile.toList, compile.fold, ...), kept as a
// value (rather than free functions taking a Stream) so call sites read
// `Compile(s).ToSlice(ctx)` the way fs2 reads `s.compile.toList`.
type compiler[O any] struct {
	s Stream[O]
}

// Compile begins a terminal operation on s.
func Compile[O any](s Stream[O]) compiler[O] {
	return compiler[O]{s: s}
}

// Drain runs s to completion for its effects only, discarding all output.
func (c compiler[O]) Drain(ctx context.Context) error {
	_, err := FoldChunks(c.s, struct{}{}, func(acc struct{}, _ Chunk[O]) struct{} { return acc }).run(ctx)
	return err
}

// ToSlice runs s to completion and returns every element it produced, in
// order.
func (c compiler[O]) ToSlice(ctx context.Context) ([]O, error) {
	return FoldChunks(c.s, []O{}, func(acc []O, chunk Chunk[O]) []O {
		return append(acc, chunk.ToSlice()...)
	}).run(ctx)
}

// Count runs s to completion and returns the number of elements produced.
func (c compiler[O]) Count(ctx context.Context) (int, error) {
	return FoldChunks(c.s, 0, func(acc int, chunk Chunk[O]) int {
		return acc + chunk.Size()
	}).run(ctx)
}

// Last runs s to completion and returns its final element, if any.
func (c compiler[O]) Last(ctx context.Context) (Optional[O], error) {
	return FoldChunks(c.s, None[O](), func(acc Optional[O], chunk Chunk[O]) Optional[O] {
		if chunk.IsEmpty() {
			return acc
		}
		return Some(chunk.At(chunk.Size() - 1))
	}).run(ctx)
}

// LastOrError is like Last but fails if s produced no elements.
func (c compiler[O]) LastOrError(ctx context.Context) (O, error) {
	last, err := c.Last(ctx)
	if err != nil {
		var zero O
		return zero, err
	}
	return last.OrRaise(ErrEmptyStream)
}

// Fold runs s to completion, threading every element through fn starting
// from init.
func (c compiler[O]) Fold(ctx context.Context, init any, fn func(any, O) any) (any, error) {
	return FoldChunks(c.s, init, func(acc any, chunk Chunk[O]) any {
		for v := range chunk.Seq() {
			acc = fn(acc, v)
		}
		return acc
	}).run(ctx)
}

// foldRun is a Pull-shaped accumulation used by every compile.* method: it
// runs s inside a fresh root Scope, folding chunks into acc as they arrive,
// and closes the scope (running every registered finalizer) whether s
// completed, failed, or was interrupted.
type foldRun[O, A any] struct {
	s    Stream[O]
	init A
	fn   func(A, Chunk[O]) A
}

// FoldChunks builds a terminal fold over s's chunks directly (rather than
// its elements), letting callers avoid per-element overhead when a
// chunk-level reduction suffices — e.g. ToSlice's append(acc, chunk...).
func FoldChunks[O, A any](s Stream[O], init A, fn func(A, Chunk[O]) A) foldRun[O, A] {
	return foldRun[O, A]{s: s, init: init, fn: fn}
}

func (f foldRun[O, A]) run(ctx context.Context) (A, error) {
	root := NewRootScope()
	acc := f.init
	p := f.s.pull
	for {
		r := p.step(ctx, root)
		switch r.out {
		case outcomeMore:
			acc = f.fn(acc, r.chunk)
			p = r.next
		case outcomeDone:
			closeErr := root.Close(ctx, ExitSucceeded)
			return acc, closeErr
		case outcomeFailed:
			closeErr := root.Close(ctx, ExitErrored)
			if closeErr != nil {
				return acc, NewCompositeFailure(r.err, closeErr)
			}
			return acc, r.err
		case outcomeInterrupted:
			_ = root.Close(ctx, ExitCanceled)
			if r.interruptBy != nil && r.interruptBy != errInterrupted {
				return acc, r.interruptBy
			}
			return acc, nil
		default:
			_ = root.Close(ctx, ExitErrored)
			return acc, ErrScopeLookupFailure
		}
	}
}

// ErrEmptyStream is returned by LastOrError when the stream produced no
// elements.
var ErrEmptyStream = &UserError{Err: errEmptyStream{}}

type errEmptyStream struct{}

func (errEmptyStream) Error() string { return "streams: expected at least one element" }

package streams

import (
	"context"
	"sync"
)

// ParEvalMap applies f to each element of s with up to concurrency workers
// running at once, preserving input order in the output — the Pull/Stream
// rendition of the teacher's ParallelMap(Ctx) (parallel.go), rebuilt on top
// of Stream/Scope instead of iter.Pull + raw channels. concurrency <= 0 is
// treated as 1 (sequential).
func ParEvalMap[O, P any](s Stream[O], concurrency int, f func(context.Context, O) (P, error)) Stream[P] {
	if concurrency <= 0 {
		concurrency = 1
	}
	batch := Eval(func(ctx context.Context) ([]P, error) {
		in, err := Compile(s).ToSlice(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]P, len(in))
		errs := make([]error, len(in))
		sem := make(chan struct{}, concurrency)
		var wg sync.WaitGroup
		for i, v := range in {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, v O) {
				defer wg.Done()
				defer func() { <-sem }()
				p, err := f(ctx, v)
				out[i] = p
				errs[i] = err
			}(i, v)
		}
		wg.Wait()
		for _, e := range errs {
			if e != nil {
				return nil, e
			}
		}
		return out, nil
	})
	return FlatMapStream(batch, func(xs []P) Stream[P] { return FromSlice(xs) })
}

// parEvalResult carries one unordered worker's output or error.
// ParEvalMapUnordered collects them in the order the workers finish and
// emits them only after every worker has finished.
type parEvalResult[P any] struct {
	v   P
	err error
}

// ParEvalMapUnordered is like ParEvalMap but yields results in completion
// order rather than input order, placing a fast worker's result ahead of a
// slower one that was scheduled first — the Go rendition of the teacher's
// parallelMapUnordered (parallel.go). Like ParEvalMap, it runs every worker
// to completion before emitting any result.
func ParEvalMapUnordered[O, P any](s Stream[O], concurrency int, f func(context.Context, O) (P, error)) Stream[P] {
	if concurrency <= 0 {
		concurrency = 1
	}
	batch := Eval(func(ctx context.Context) ([]parEvalResult[P], error) {
		in, err := Compile(s).ToSlice(ctx)
		if err != nil {
			return nil, err
		}
		results := make(chan parEvalResult[P], len(in))
		sem := make(chan struct{}, concurrency)
		var wg sync.WaitGroup
		for _, v := range in {
			wg.Add(1)
			sem <- struct{}{}
			go func(v O) {
				defer wg.Done()
				defer func() { <-sem }()
				p, err := f(ctx, v)
				results <- parEvalResult[P]{v: p, err: err}
			}(v)
		}
		go func() {
			wg.Wait()
			close(results)
		}()
		out := make([]parEvalResult[P], 0, len(in))
		for r := range results {
			out = append(out, r)
		}
		return out, nil
	})
	return FlatMapStream(batch, func(rs []parEvalResult[P]) Stream[P] {
		result := Empty[P]()
		for _, r := range rs {
			if r.err != nil {
				return Append(result, fromPull(Fail[P, struct{}](r.err)))
			}
			result = Append(result, Emit(r.v))
		}
		return result
	})
}

package streams

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustToSlice[O any](t *testing.T, s Stream[O]) []O {
	t.Helper()
	out, err := Compile(s).ToSlice(context.Background())
	require.NoError(t, err)
	return out
}

func TestStreamConstructors(t *testing.T) {
	t.Parallel()

	t.Run("Empty produces nothing", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []int{}, mustToSlice(t, Empty[int]()))
	})

	t.Run("Emit produces one element", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []int{5}, mustToSlice(t, Emit(5)))
	})

	t.Run("EmitAll produces every argument in order", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []int{1, 2, 3}, mustToSlice(t, EmitAll(1, 2, 3)))
	})

	t.Run("FromSlice mirrors the slice", func(t *testing.T) {
		t.Parallel()
		vs := []string{"a", "b", "c"}
		assert.Equal(t, vs, mustToSlice(t, FromSlice(vs)))
	})

	t.Run("Eval lifts a successful task", func(t *testing.T) {
		t.Parallel()
		s := Eval(func(ctx context.Context) (int, error) { return 42, nil })
		assert.Equal(t, []int{42}, mustToSlice(t, s))
	})

	t.Run("Eval propagates a failing task wrapped as UserError", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		s := Eval(func(ctx context.Context) (int, error) { return 0, boom })
		_, err := Compile(s).ToSlice(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
	})
}

func TestStreamConcatenation(t *testing.T) {
	t.Parallel()

	t.Run("Append concatenates two streams", func(t *testing.T) {
		t.Parallel()
		got := mustToSlice(t, Append(EmitAll(1, 2), EmitAll(3, 4)))
		assert.Equal(t, []int{1, 2, 3, 4}, got)
	})

	t.Run("Concat handles zero, one and many streams", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []int{}, mustToSlice(t, Concat[int]()))
		assert.Equal(t, []int{1, 2}, mustToSlice(t, Concat(EmitAll(1, 2))))
		assert.Equal(t, []int{1, 2, 3, 4, 5}, mustToSlice(t, Concat(EmitAll(1, 2), EmitAll(3, 4), Emit(5))))
	})
}

func TestStreamTransforms(t *testing.T) {
	t.Parallel()

	t.Run("MapStream", func(t *testing.T) {
		t.Parallel()
		got := mustToSlice(t, MapStream(EmitAll(1, 2, 3), func(v int) int { return v * v }))
		assert.Equal(t, []int{1, 4, 9}, got)
	})

	t.Run("FilterStream", func(t *testing.T) {
		t.Parallel()
		got := mustToSlice(t, FilterStream(EmitAll(1, 2, 3, 4, 5), func(v int) bool { return v%2 == 0 }))
		assert.Equal(t, []int{2, 4}, got)
	})

	t.Run("FlatMapStream", func(t *testing.T) {
		t.Parallel()
		got := mustToSlice(t, FlatMapStream(EmitAll(1, 2, 3), func(v int) Stream[int] { return EmitAll(v, v*10) }))
		assert.Equal(t, []int{1, 10, 2, 20, 3, 30}, got)
	})

	t.Run("Take", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name string
			n    int
			want []int
		}{
			{"fewer than available", 2, []int{1, 2}},
			{"more than available", 10, []int{1, 2, 3}},
			{"zero", 0, []int{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				got := mustToSlice(t, Take(EmitAll(1, 2, 3), tt.n))
				assert.Equal(t, tt.want, got)
			})
		}
	})

	t.Run("Drop", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			name string
			n    int
			want []int
		}{
			{"fewer than available", 2, []int{3, 4, 5}},
			{"more than available", 10, []int{}},
			{"zero", 0, []int{1, 2, 3, 4, 5}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()
				got := mustToSlice(t, Drop(EmitAll(1, 2, 3, 4, 5), tt.n))
				assert.Equal(t, tt.want, got)
			})
		}
	})

	t.Run("TakeWhile", func(t *testing.T) {
		t.Parallel()
		got := mustToSlice(t, TakeWhile(EmitAll(1, 2, 3, 4, 1), func(v int) bool { return v < 4 }))
		assert.Equal(t, []int{1, 2, 3}, got)
	})
}

func TestStreamErrorHandling(t *testing.T) {
	t.Parallel()

	t.Run("HandleErrorWith recovers a failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		failing := fromPull(Fail[int, struct{}](boom))
		recovered := HandleErrorWith(failing, func(err error) Stream[int] {
			assert.Same(t, boom, err)
			return EmitAll(9, 9)
		})
		assert.Equal(t, []int{9, 9}, mustToSlice(t, recovered))
	})

	t.Run("HandleErrorWith leaves a successful stream untouched", func(t *testing.T) {
		t.Parallel()
		s := HandleErrorWith(EmitAll(1, 2), func(error) Stream[int] { return Emit(-1) })
		assert.Equal(t, []int{1, 2}, mustToSlice(t, s))
	})

	t.Run("Attempt wraps values as Ok and the failure as a final Err", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		s := Append(EmitAll(1, 2), fromPull(Fail[int, struct{}](boom)))
		got := mustToSlice(t, Attempt(s))
		require.Len(t, got, 3)
		assert.True(t, got[0].IsOk())
		assert.Equal(t, 1, got[0].Value())
		assert.True(t, got[1].IsOk())
		assert.Equal(t, 2, got[1].Value())
		assert.True(t, got[2].IsErr())
		assert.Same(t, boom, got[2].Error())
	})
}

func TestBracketCase(t *testing.T) {
	t.Parallel()

	t.Run("release runs exactly once after normal completion", func(t *testing.T) {
		t.Parallel()
		var releasedWith ExitCase
		releases := 0
		s := BracketCase(
			func(ctx context.Context) (int, error) { return 1, nil },
			func(r int) Stream[int] { return EmitAll(r, r+1) },
			func(ctx context.Context, ec ExitCase, r int) error {
				releases++
				releasedWith = ec
				return nil
			},
		)
		got := mustToSlice(t, s)
		assert.Equal(t, []int{1, 2}, got)
		assert.Equal(t, 1, releases)
		assert.Equal(t, ExitSucceeded, releasedWith)
	})

	t.Run("release observes ExitErrored when the body fails", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		var releasedWith ExitCase
		s := BracketCase(
			func(ctx context.Context) (int, error) { return 1, nil },
			func(r int) Stream[int] {
				return Append(Emit(r), fromPull(Fail[int, struct{}](boom)))
			},
			func(ctx context.Context, ec ExitCase, r int) error {
				releasedWith = ec
				return nil
			},
		)
		_, err := Compile(s).ToSlice(context.Background())
		require.Error(t, err)
		assert.Equal(t, ExitErrored, releasedWith)
	})

	t.Run("Bracket ignores the ExitCase", func(t *testing.T) {
		t.Parallel()
		released := false
		s := Bracket(
			func(ctx context.Context) (int, error) { return 1, nil },
			func(r int) Stream[int] { return Emit(r) },
			func(ctx context.Context, r int) error {
				released = true
				return nil
			},
		)
		got := mustToSlice(t, s)
		assert.Equal(t, []int{1}, got)
		assert.True(t, released)
	})

	t.Run("nested brackets release in LIFO order", func(t *testing.T) {
		t.Parallel()
		var order []string
		labeled := func(label string) Stream[int] {
			return Bracket(
				func(context.Context) (string, error) { return label, nil },
				func(string) Stream[int] { return Emit(1) },
				func(ctx context.Context, l string) error {
					order = append(order, l)
					return nil
				},
			)
		}
		outer := FlatMapStream(labeled("outer"), func(int) Stream[int] {
			return FlatMapStream(labeled("middle"), func(int) Stream[int] {
				return labeled("inner")
			})
		})
		got := mustToSlice(t, outer)
		assert.Equal(t, []int{1}, got)
		assert.Equal(t, []string{"inner", "middle", "outer"}, order)
	})

	t.Run("release runs exactly once even when Take truncates the body", func(t *testing.T) {
		t.Parallel()
		releases := 0
		s := Bracket(
			func(context.Context) (int, error) { return 1, nil },
			func(int) Stream[int] { return EmitAll(1, 2, 3, 4, 5) },
			func(ctx context.Context, r int) error {
				releases++
				return nil
			},
		)
		got := mustToSlice(t, Take(s, 2))
		assert.Equal(t, []int{1, 2}, got)
		assert.Equal(t, 1, releases)
	})
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	identity := Middleware(func(next Task[any]) Task[any] { return next })

	t.Run("translate with the identity middleware does not change the stream's output", func(t *testing.T) {
		t.Parallel()
		s := Eval(func(context.Context) (int, error) { return 42, nil })
		plain := mustToSlice(t, s)
		translated := mustToSlice(t, Translate(s, identity))
		assert.Equal(t, plain, translated)
	})

	t.Run("translate rewrites every Eval effect the stream performs", func(t *testing.T) {
		t.Parallel()
		var calls int
		counting := Middleware(func(next Task[any]) Task[any] {
			return func(ctx context.Context) (any, error) {
				calls++
				return next(ctx)
			}
		})
		s := FlatMapStream(
			Eval(func(context.Context) (int, error) { return 1, nil }),
			func(v int) Stream[int] {
				return Eval(func(context.Context) (int, error) { return v + 1, nil })
			},
		)
		got := mustToSlice(t, Translate(s, counting))
		assert.Equal(t, []int{2}, got)
		assert.Equal(t, 2, calls)
	})

	t.Run("translate rewrites the Acquire effect too, not just Eval", func(t *testing.T) {
		t.Parallel()
		var acquireWrapped bool
		mw := Middleware(func(next Task[any]) Task[any] {
			return func(ctx context.Context) (any, error) {
				acquireWrapped = true
				return next(ctx)
			}
		})
		s := Bracket(
			func(context.Context) (int, error) { return 7, nil },
			func(r int) Stream[int] { return Emit(r) },
			func(context.Context, int) error { return nil },
		)
		got := mustToSlice(t, Translate(s, mw))
		assert.Equal(t, []int{7}, got)
		assert.True(t, acquireWrapped)
	})
}

func TestScopedAndInterrupt(t *testing.T) {
	t.Parallel()

	t.Run("Scoped runs finalizers registered inside it before returning", func(t *testing.T) {
		t.Parallel()
		ran := false
		body := FlatMapStream(currentScopeStream(), func(sc *Scope) Stream[int] {
			_ = sc.RegisterFinalizer(context.Background(), func(context.Context, ExitCase) error {
				ran = true
				return nil
			})
			return Emit(1)
		})
		got := mustToSlice(t, Scoped(body))
		assert.Equal(t, []int{1}, got)
		assert.True(t, ran)
	})

	t.Run("InterruptWhen stops the stream when haltOn fires first", func(t *testing.T) {
		t.Parallel()
		haltOn := func(ctx context.Context) (error, error) { return nil, nil }
		s := InterruptWhen(infiniteStream(), haltOn)
		_, err := Compile(s).ToSlice(context.Background())
		assert.NoError(t, err)
	})
}

// currentScopeStream is a one-element Stream exposing the Scope it ran in,
// for tests that need to register a finalizer from inside a Stream body.
func currentScopeStream() Stream[*Scope] {
	return fromPull(Pull[*Scope, struct{}]{
		step: func(ctx context.Context, sc *Scope) stepResult[*Scope, struct{}] {
			return stepResult[*Scope, struct{}]{chunk: ChunkOf(sc), next: Done[*Scope, struct{}](struct{}{}), out: outcomeMore}
		},
	})
}

// infiniteStream emits 1 forever, checking for interruption before every
// element so InterruptWhen can stop it.
func infiniteStream() Stream[int] {
	var loop func() Pull[int, struct{}]
	loop = func() Pull[int, struct{}] {
		return Pull[int, struct{}]{
			step: func(ctx context.Context, sc *Scope) stepResult[int, struct{}] {
				if boundary := sc.FindInterruptibleAncestor(); boundary != nil {
					if reason, interrupted := boundary.InterruptRequested(); interrupted {
						return stepResult[int, struct{}]{out: outcomeInterrupted, interruptBy: reason}
					}
				}
				return stepResult[int, struct{}]{chunk: ChunkOf(1), next: loop(), out: outcomeMore}
			},
		}
	}
	return fromPull(loop())
}

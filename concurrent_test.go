package streams

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	t.Parallel()
	got, err := Compile(Merge(EmitAll(1, 2), EmitAll(3, 4))).ToSlice(context.Background())
	require.NoError(t, err)
	sort.Ints(got)
	assert.Equal(t, []int{1, 2, 3, 4}, got)
}

func TestMergePropagatesFirstError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	failing := fromPull(Fail[int, struct{}](boom))
	_, err := Compile(Merge(failing, EmitAll(1, 2))).ToSlice(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestMergeHaltVariants(t *testing.T) {
	t.Parallel()

	t.Run("MergeHaltBoth is an alias for Merge", func(t *testing.T) {
		t.Parallel()
		got, err := Compile(MergeHaltBoth(EmitAll(1), EmitAll(2))).ToSlice(context.Background())
		require.NoError(t, err)
		sort.Ints(got)
		assert.Equal(t, []int{1, 2}, got)
	})

	t.Run("MergeHaltL and MergeHaltR still see both finite branches fully drained", func(t *testing.T) {
		t.Parallel()
		got, err := Compile(MergeHaltL(EmitAll(1, 2), EmitAll(3, 4))).ToSlice(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, 4)

		got, err = Compile(MergeHaltR(EmitAll(1, 2), EmitAll(3, 4))).ToSlice(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, 4)
	})
}

func TestConcurrently(t *testing.T) {
	t.Parallel()

	t.Run("main stream completes normally with background running", func(t *testing.T) {
		t.Parallel()
		bgRan := false
		background := Eval(func(ctx context.Context) (struct{}, error) {
			bgRan = true
			return struct{}{}, nil
		})
		got, err := Compile(Concurrently(EmitAll(1, 2, 3), background)).ToSlice(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, got)
		assert.True(t, bgRan)
	})

	t.Run("a failing background interrupts the main stream", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("background failed")
		background := Eval(func(ctx context.Context) (struct{}, error) { return struct{}{}, boom })
		_, err := Compile(Concurrently(infiniteStream(), background)).ToSlice(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
	})
}

func TestObserve(t *testing.T) {
	t.Parallel()

	t.Run("passes elements through unchanged while running the sink", func(t *testing.T) {
		t.Parallel()
		var seen []int
		got, err := Compile(Observe(EmitAll(1, 2, 3), func(v int) error {
			seen = append(seen, v)
			return nil
		})).ToSlice(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, got)
		assert.Equal(t, []int{1, 2, 3}, seen)
	})

	t.Run("a failing sink fails the stream", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("sink failed")
		_, err := Compile(Observe(EmitAll(1, 2), func(v int) error {
			if v == 2 {
				return boom
			}
			return nil
		})).ToSlice(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
	})
}

func TestParJoin(t *testing.T) {
	t.Parallel()

	t.Run("flattens inner streams, bounded by maxOpen", func(t *testing.T) {
		t.Parallel()
		outer := EmitAll(EmitAll(1, 2), EmitAll(3, 4), EmitAll(5, 6))
		got, err := Compile(ParJoin(2, outer)).ToSlice(context.Background())
		require.NoError(t, err)
		sort.Ints(got)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, got)
	})

	t.Run("an empty outer stream yields nothing", func(t *testing.T) {
		t.Parallel()
		got, err := Compile(ParJoin(2, Empty[Stream[int]]())).ToSlice(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{}, got)
	})

	t.Run("a failing inner stream fails the whole join", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("inner failed")
		failing := fromPull(Fail[int, struct{}](boom))
		outer := EmitAll(EmitAll(1, 2), failing)
		_, err := Compile(ParJoin(2, outer)).ToSlice(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
	})

	t.Run("maxOpen <= 0 is treated as 1", func(t *testing.T) {
		t.Parallel()
		outer := EmitAll(EmitAll(1), EmitAll(2))
		got, err := Compile(ParJoin(0, outer)).ToSlice(context.Background())
		require.NoError(t, err)
		sort.Ints(got)
		assert.Equal(t, []int{1, 2}, got)
	})

	t.Run("every inner stream's finalizer completes before the outer bracket's own finalizer", func(t *testing.T) {
		t.Parallel()
		var mu sync.Mutex
		var order []string
		labeled := func(label string, vs ...int) Stream[int] {
			return Bracket(
				func(context.Context) (string, error) { return label, nil },
				func(string) Stream[int] { return EmitAll(vs...) },
				func(ctx context.Context, l string) error {
					mu.Lock()
					order = append(order, l)
					mu.Unlock()
					return nil
				},
			)
		}
		joined := ParJoin(3, EmitAll(
			labeled("inner-1", 1, 2),
			labeled("inner-2", 3, 4),
			labeled("inner-3", 5, 6),
		))
		wrapped := Bracket(
			func(context.Context) (string, error) { return "outer", nil },
			func(string) Stream[int] { return joined },
			func(ctx context.Context, l string) error {
				mu.Lock()
				order = append(order, l)
				mu.Unlock()
				return nil
			},
		)
		got, err := Compile(wrapped).ToSlice(context.Background())
		require.NoError(t, err)
		sort.Ints(got)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, got)

		require.Len(t, order, 4)
		assert.Equal(t, "outer", order[len(order)-1])
		assert.ElementsMatch(t, []string{"inner-1", "inner-2", "inner-3"}, order[:3])
	})
}

package streams

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastThrough(t *testing.T) {
	t.Parallel()

	t.Run("every pipe sees every element", func(t *testing.T) {
		t.Parallel()
		source := EmitAll(1, 2, 3)
		doubled := func(s Stream[int]) Stream[int] { return MapStream(s, func(v int) int { return v * 2 }) }
		tripled := func(s Stream[int]) Stream[int] { return MapStream(s, func(v int) int { return v * 3 }) }

		got, err := Compile(BroadcastThrough(source, doubled, tripled)).ToSlice(context.Background())
		require.NoError(t, err)
		sort.Ints(got)
		assert.Equal(t, []int{2, 3, 4, 6, 6, 9}, got)
	})

	t.Run("no pipes yields an empty stream", func(t *testing.T) {
		t.Parallel()
		got, err := Compile(BroadcastThrough(EmitAll(1, 2, 3))).ToSlice(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int{}, got)
	})

	t.Run("a single pipe sees the whole source", func(t *testing.T) {
		t.Parallel()
		identity := func(s Stream[int]) Stream[int] { return s }
		got, err := Compile(BroadcastThrough(EmitAll(1, 2, 3), identity)).ToSlice(context.Background())
		require.NoError(t, err)
		sort.Ints(got)
		assert.Equal(t, []int{1, 2, 3}, got)
	})
}

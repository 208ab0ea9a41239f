package streams

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeStartTyped(t *testing.T) {
	t.Parallel()

	t.Run("Join returns the task's result", func(t *testing.T) {
		t.Parallel()
		rt := NewRuntime()
		_ = rt
		f := StartTyped(context.Background(), func(ctx context.Context) (int, error) { return 42, nil })
		v, err := f.Join(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("Join propagates the task's error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		f := StartTyped(context.Background(), func(ctx context.Context) (int, error) { return 0, boom })
		_, err := f.Join(context.Background())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Cancel stops a long-running task observing ctx", func(t *testing.T) {
		t.Parallel()
		f := StartTyped(context.Background(), func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		f.Cancel()
		_, err := f.Join(context.Background())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRuntimeStart(t *testing.T) {
	t.Parallel()
	rt := NewRuntime()
	f := rt.Start(context.Background(), func(ctx context.Context) (any, error) { return "ok", nil })
	v, err := f.Join(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestSleep(t *testing.T) {
	t.Parallel()

	t.Run("returns after the given duration", func(t *testing.T) {
		t.Parallel()
		start := time.Now()
		_, err := Sleep(10 * time.Millisecond)(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("returns early when ctx is canceled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Sleep(time.Second)(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

package streams

import (
	"context"
	"time"
)

// Sleep returns a Task that blocks for d or until ctx is canceled,
// whichever happens first. It is the external "sleep capability" spec.md §5
// names as what InterruptWhen composes with to build timeouts.
func Sleep(d time.Duration) Task[struct{}] {
	return func(ctx context.Context) (struct{}, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return struct{}{}, nil
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		}
	}
}

// Package latency models the wait of a radio round trip: scans and device
// commands suspend the caller for a configured duration without holding
// any lock, and give up early when the caller's context ends.
package latency

import (
	"context"
	"time"
)

// Wait blocks for d or until ctx is done, whichever comes first.
// It returns ctx.Err() if the context ended the wait.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package timeutil carries small clock helpers shared by the ingestion
// components.
package timeutil

import (
	"context"
	"time"
)

// Sleep blocks for d or until ctx is done, whichever comes first. Returns
// false when the sleep was cut short by cancellation.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

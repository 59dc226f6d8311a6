package action

import (
	"context"
	"time"
)

// AwaitArrival blocks until arrived fires, the timeout passes or ctx ends.
// On timeout reset is called and (false, nil) is returned: giving up on a
// movement is not an error. Cancellation returns ctx.Err().
func AwaitArrival(ctx context.Context, arrived <-chan struct{}, timeout time.Duration, reset func()) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-arrived:
		return true, nil
	case <-timer.C:
		if reset != nil {
			reset()
		}
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

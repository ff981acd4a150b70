package browser

import (
	"context"
	"fmt"
	"time"
)

// DefaultPollInterval is used by Poll when interval is not positive.
const DefaultPollInterval = 100 * time.Millisecond

// Poll calls fn until it reports true, returns an error, or timeout elapses.
// fn receives a context that expires at the deadline, so a blocking check
// cannot outlive the timeout. On timeout the returned error wraps ErrTimeout.
// A cancelled ctx ends the loop with ctx.Err().
func Poll(ctx context.Context, timeout, interval time.Duration, fn func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := fn(pollCtx)
		if ok && err == nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if pollCtx.Err() != nil {
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pollCtx.Done():
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case <-ticker.C:
		}
	}
}

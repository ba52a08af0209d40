package autofill

import (
	"context"
	"errors"
	"time"
)

var errPollTimeout = errors.New("poll deadline exceeded")

// pollUntil runs probe immediately and then on every tick until it reports
// done or timeout elapses. The deadline is local, so an abandoned run still
// returns on its own. Cancellation of ctx is returned as ctx.Err().
func pollUntil[T any](ctx context.Context, timeout, interval time.Duration, probe func(context.Context) (T, bool)) (T, error) {
	var zero T
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if v, ok := probe(pollCtx); ok {
			return v, nil
		}
		select {
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			return zero, errPollTimeout
		case <-ticker.C:
		}
	}
}

// wait pauses for d or until ctx is done. Tests swap it out.
var wait = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

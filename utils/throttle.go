package utils

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces out consecutive calls against an external service so that
// at most one call starts per interval.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle creates a Throttle with the given minimum interval in milliseconds.
// A non-positive interval disables throttling.
func NewThrottle(intervalMs int) *Throttle {
	if intervalMs <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(time.Duration(intervalMs)*time.Millisecond), 1)}
}

// Wait blocks until the next call is allowed or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

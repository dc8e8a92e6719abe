package openai

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// newLimiter returns a limiter admitting perMinute requests per minute, or nil
// when perMinute is zero.
func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// wait blocks until limiter admits a request. A nil limiter never blocks.
func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

package fetch

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"listing-scraper/utils"
)

// throttle spaces out requests: at most one per delay, plus up to jitter
// of random extra wait.
type throttle struct {
	limiter *rate.Limiter
	jitter  time.Duration
}

func newThrottle(delay, jitter time.Duration) *throttle {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &throttle{limiter: rate.NewLimiter(limit, 1), jitter: jitter}
}

func (t *throttle) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	if t.jitter > 0 {
		return utils.RandomDelay(ctx, 0, t.jitter)
	}
	return nil
}

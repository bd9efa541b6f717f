package resilience

import (
	"context"
	"time"
)

// schedule hands out the wait before each retry of one call.
type schedule struct {
	next          time.Duration
	max           time.Duration
	multiplier    float64
	maxRetryAfter time.Duration
}

func newSchedule(cfg Config) *schedule {
	return &schedule{
		next:          cfg.BaseDelay,
		max:           cfg.MaxDelay,
		multiplier:    cfg.Multiplier,
		maxRetryAfter: cfg.MaxRetryAfter,
	}
}

// delay returns the wait after err and advances the schedule. A longer
// Retry-After hint carried by err wins, up to maxRetryAfter.
func (s *schedule) delay(err error) time.Duration {
	wait := min(s.next, s.max)
	s.next = min(time.Duration(float64(s.next)*s.multiplier), s.max)
	if hint := retryAfterHint(err); hint > wait {
		wait = min(hint, s.maxRetryAfter)
	}
	return wait
}

func sleep(ctx context.Context, d time.Duration) error {
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

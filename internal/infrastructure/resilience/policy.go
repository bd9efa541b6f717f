package resilience

import "time"

// Config is the retry schedule plus the breaker kept per operation name.
// Zero fields fall back to DefaultConfig.
type Config struct {
	Attempts      int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	MaxRetryAfter time.Duration

	Breaker BreakerConfig
}

// BreakerConfig trips an operation's breaker once MinRequests calls were seen
// in the current window and at least FailureRatio of them failed.
type BreakerConfig struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenFor          time.Duration
	HalfOpenRequests uint32
}

func DefaultConfig() Config {
	return Config{
		Attempts:      3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      400 * time.Millisecond,
		Multiplier:    2,
		MaxRetryAfter: 5 * time.Second,
		Breaker: BreakerConfig{
			Enabled:          true,
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenFor:          30 * time.Second,
			HalfOpenRequests: 2,
		},
	}
}

// WithoutRetries keeps the breaker but allows a single attempt.
func (c Config) WithoutRetries() Config {
	c.Attempts = 1
	return c
}

func (c Config) normalize() Config {
	def := DefaultConfig()

	c.Attempts = positiveOr(c.Attempts, def.Attempts)
	c.BaseDelay = positiveOr(c.BaseDelay, def.BaseDelay)
	c.MaxDelay = max(positiveOr(c.MaxDelay, def.MaxDelay), c.BaseDelay)
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	c.MaxRetryAfter = positiveOr(c.MaxRetryAfter, def.MaxRetryAfter)

	b := &c.Breaker
	b.MinRequests = positiveOr(b.MinRequests, def.Breaker.MinRequests)
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	b.OpenFor = positiveOr(b.OpenFor, def.Breaker.OpenFor)
	b.HalfOpenRequests = positiveOr(b.HalfOpenRequests, def.Breaker.HalfOpenRequests)
	return c
}

func positiveOr[T ~int | ~int64 | ~uint32](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

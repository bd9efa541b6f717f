package resilience

import (
	"errors"
	"log/slog"

	"github.com/sony/gobreaker/v2"
)

func (e *Executor) breaker(name string, classify ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[name]; ok {
		return cb
	}

	bc := e.cfg.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: bc.HalfOpenRequests,
		Timeout:     bc.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= bc.MinRequests &&
				float64(c.TotalFailures) >= bc.FailureRatio*float64(c.Requests)
		},
		// Errors the classifier does not record, such as 4xx responses, count as successes.
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("breaker_state_changed", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[name] = cb
	return cb
}

// IsCircuitOpen reports whether err was produced by an open or saturated
// half-open breaker rather than by the call itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

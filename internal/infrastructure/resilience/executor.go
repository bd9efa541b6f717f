package resilience

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/sony/gobreaker/v2"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor runs outbound calls with bounded retries behind a per-operation
// circuit breaker. A nil *Executor calls fn once with no protection.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Execute runs fn under the named operation's retry schedule and breaker.
// The breaker sees one outcome per Execute, not one per attempt.
func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return errors.New("resilience: nil operation")
	}
	if e == nil {
		return fn(ctx)
	}
	name := cmp.Or(strings.TrimSpace(operation), "unknown")
	if classifier == nil {
		classifier = defaultClassifier
	}

	run := func() error { return e.retry(ctx, name, fn, classifier) }
	if !e.cfg.Breaker.Enabled {
		return run()
	}
	_, err := e.breaker(name, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, run()
	})
	return err
}

// Do is Execute for calls that produce a value.
func Do[T any](
	ctx context.Context,
	e *Executor,
	operation string,
	fn func(context.Context) (T, error),
	classifier ErrorClassifier,
) (T, error) {
	var out T
	err := e.Execute(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	}, classifier)
	return out, err
}

func (e *Executor) retry(ctx context.Context, name string, fn func(context.Context) error, classify ErrorClassifier) error {
	sched := newSchedule(e.cfg)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= e.cfg.Attempts || !classify(err).Retryable {
			return err
		}

		wait := sched.delay(err)
		slog.Warn("retry_scheduled",
			"operation", name,
			"attempt", attempt,
			"max_attempts", e.cfg.Attempts,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
		if sleep(ctx, wait) != nil {
			return err
		}
	}
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}

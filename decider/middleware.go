package decider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/queueops/sqs-decider/codec"
)

// NewIgnoreErrorsMiddleware suppresses handler errors: the message is
// acknowledged as if the handler had succeeded. If a logger is provided
// the error is logged.
func NewIgnoreErrorsMiddleware(l *slog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, v codec.Value) (Outcome, error) {
			outcome, err := next.Handle(ctx, v)
			if err != nil {
				if l != nil {
					l.ErrorContext(ctx, fmt.Sprintf("failed to process message: %v", err))
				}

				return Success(), nil
			}

			return outcome, nil
		}
	}
}

// NewPanicRecoverMiddleware converts handler panics into handler errors,
// so a panicking message follows the configured failure policy instead of
// crashing the worker.
func NewPanicRecoverMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, v codec.Value) (outcome Outcome, err error) {
			defer func() {
				if r := recover(); r != nil {
					outcome = Outcome{}
					err = fmt.Errorf("recovered from panic: %v", r)
				}
			}()

			return next.Handle(ctx, v)
		}
	}
}

// NewTimeLimitMiddleware enforces a timeout on each handler invocation.
func NewTimeLimitMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, v codec.Value) (Outcome, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				outcome Outcome
				err     error
			}

			done := make(chan result, 1)

			go func() {
				outcome, err := next(ctx, v)
				done <- result{outcome: outcome, err: err}
			}()

			select {
			case r := <-done:
				return r.outcome, r.err
			case <-ctx.Done():
				return Outcome{}, ctx.Err()
			}
		}
	}
}

package decider

import (
	"context"
	"fmt"

	"github.com/queueops/sqs-decider/codec"
)

// resolver maps a handler outcome to the action for one message.
type resolver interface {
	Resolve(ctx context.Context, v codec.Value, handler Handler) (Action, error)
}

// ackOrRetry is the retry-on-failure policy: success acknowledges, failure
// propagates as an element-level error and the message is left to the
// queue's visibility timeout.
type ackOrRetry struct{}

func (ackOrRetry) Resolve(ctx context.Context, v codec.Value, handler Handler) (Action, error) {
	outcome, err := handler.Handle(ctx, v)
	if err != nil {
		return Action{}, fmt.Errorf("handle message: %w", err)
	}

	if action, ok := outcome.Override(); ok {
		return action, nil
	}

	return Acknowledge(), nil
}

// ackOrRequeue is the fixed-delay requeue policy: success acknowledges,
// failure is absorbed into a RequeueWithDelay decision.
type ackOrRequeue struct {
	delaySeconds int32
}

func (p ackOrRequeue) Resolve(ctx context.Context, v codec.Value, handler Handler) (Action, error) {
	outcome, err := handler.Handle(ctx, v)
	if err != nil {
		return RequeueWithDelay(p.delaySeconds), nil
	}

	if action, ok := outcome.Override(); ok {
		return action, nil
	}

	return Acknowledge(), nil
}

// newResolver selects the policy from the configured delay.
func newResolver(cfg *Config) resolver {
	if cfg.usesRequeuePolicy() {
		return ackOrRequeue{delaySeconds: cfg.requeueDelaySeconds()}
	}

	return ackOrRetry{}
}

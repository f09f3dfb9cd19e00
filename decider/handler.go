package decider

import (
	"context"

	"github.com/queueops/sqs-decider/codec"
)

// Handler is the asynchronous business function the pipeline runs against
// each decoded message body.
type Handler interface {
	Handle(ctx context.Context, v codec.Value) (Outcome, error)
}

// HandlerFunc allows using plain functions as handlers.
type HandlerFunc func(ctx context.Context, v codec.Value) (Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, v codec.Value) (Outcome, error) {
	return f(ctx, v)
}

// Middleware wraps a handler with cross-cutting behavior.
type Middleware func(next HandlerFunc) HandlerFunc

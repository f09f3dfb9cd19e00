package decider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.opentelemetry.io/otel/propagation"

	"github.com/queueops/sqs-decider/codec"
	"github.com/queueops/sqs-decider/decider/observability"
)

// Pipeline turns a stream of SQS messages into a stream of decisions. Per
// message it applies the retry-limit gate, decodes the body, runs the
// business handler under the configured failure policy and pairs the
// resulting action with the original message.
type Pipeline struct {
	cfg        *Config
	resolver   resolver
	logger     *slog.Logger
	tracer     observability.SQSTracer
	metrics    observability.SQSMetrics
	propagator propagation.TextMapPropagator
}

// NewPipeline creates a pipeline for the given config. A nil logger
// discards all output.
func NewPipeline(cfg *Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	obs := cfg.Observability
	if obs == nil {
		obs = observability.NewConfig()
	}

	return &Pipeline{
		cfg:        cfg,
		resolver:   newResolver(cfg),
		logger:     logger,
		tracer:     observability.NewTracer(obs),
		metrics:    observability.NewMetrics(obs),
		propagator: obs.Propagator(),
	}
}

// slot carries one retained message through its in-flight computation so
// the decision is always re-paired with the same message. Slots are queued
// in arrival order; done is closed when the computation finishes.
type slot struct {
	msg    sqstypes.Message
	action Action
	err    error
	done   chan struct{}
}

// Run consumes messages until msgs is closed or ctx is cancelled and
// returns the decision stream plus a channel of element-level failures.
//
// Decisions are emitted in input order, one per retained message, even
// though up to Parallelism handler invocations run concurrently. Messages
// over the retry limit are dropped and appear on neither channel. Under
// the retry-on-failure policy a failing handler puts the element on the
// error channel instead of the decision stream.
//
// Both returned channels must be drained; they are closed when the
// pipeline stops. After cancellation, results of in-flight handlers are
// discarded, never emitted.
func (p *Pipeline) Run(ctx context.Context, msgs <-chan sqstypes.Message, handler Handler) (<-chan Decision, <-chan error) {
	var (
		decisions = make(chan Decision)
		errs      = make(chan error)
		slots     = make(chan *slot, p.cfg.Parallelism)
		sem       = make(chan struct{}, p.cfg.Parallelism)
	)

	go p.dispatch(ctx, msgs, handler, slots, sem)
	go p.collect(ctx, slots, decisions, errs)

	return decisions, errs
}

// dispatch gates incoming messages, reserves a concurrency slot for each
// retained one and starts its computation. The slot queue preserves
// arrival order for collect.
func (p *Pipeline) dispatch(
	ctx context.Context,
	msgs <-chan sqstypes.Message,
	handler Handler,
	slots chan<- *slot,
	sem chan struct{},
) {
	defer close(slots)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			if exceedsRetryLimit(msg, p.cfg.MaxRetries) {
				p.logger.WarnContext(ctx, "dropping message over retry limit",
					"messageID", aws.ToString(msg.MessageId),
					"receiveCount", ReceiveCount(msg),
					"maxRetries", p.cfg.MaxRetries,
				)
				p.metrics.Counter(ctx, observability.MetricDroppedMessages, 1,
					observability.WithQueueURLMetric(p.cfg.QueueURL),
					observability.WithActionMetric(observability.ActionDrop),
				)

				continue
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			s := &slot{msg: msg, done: make(chan struct{})}

			select {
			case slots <- s:
			case <-ctx.Done():
				<-sem

				return
			}

			go func() {
				defer close(s.done)
				defer func() { <-sem }()

				s.action, s.err = p.decide(ctx, s.msg, handler)
			}()
		}
	}
}

// collect re-pairs computed actions with their messages in arrival order.
func (p *Pipeline) collect(ctx context.Context, slots <-chan *slot, decisions chan<- Decision, errs chan<- error) {
	defer close(errs)
	defer close(decisions)

	for s := range slots {
		select {
		case <-s.done:
		case <-ctx.Done():
			return
		}

		// the computation may have finished in the same instant the
		// pipeline was cancelled; a cancelled pipeline never emits
		if ctx.Err() != nil {
			return
		}

		if s.err != nil {
			select {
			case errs <- s.err:
			case <-ctx.Done():
				return
			}

			continue
		}

		select {
		case decisions <- Decision{Message: s.msg, Action: s.action}:
			p.metrics.Counter(ctx, observability.MetricDecisions, 1,
				observability.WithQueueURLMetric(p.cfg.QueueURL),
				observability.WithActionMetric(actionLabel(s.action)),
			)
		case <-ctx.Done():
			return
		}
	}
}

// decide computes the action for a single retained message.
func (p *Pipeline) decide(ctx context.Context, msg sqstypes.Message, handler Handler) (Action, error) {
	ctx = observability.ExtractTraceContext(ctx, msg, p.propagator)

	v, err := p.decodeBody(ctx, msg)
	if err != nil {
		// Strict decoding failed; route the failure through the same path
		// as a handler failure.
		if p.cfg.usesRequeuePolicy() {
			return RequeueWithDelay(p.cfg.requeueDelaySeconds()), nil
		}

		return Action{}, err
	}

	resolveCtx, span := p.tracer.Span(ctx, observability.SpanNameResolve,
		observability.WithConsumerSpanKind(),
		observability.WithQueueURL(p.cfg.QueueURL),
		observability.WithMessageID(msg.MessageId),
		observability.WithAction(observability.ActionResolve),
	)
	defer span.End()

	start := time.Now()

	action, err := p.resolver.Resolve(resolveCtx, v, handler)

	status := observability.RecordSpanResult(span, err)
	p.metrics.RecordDuration(ctx, observability.MetricHandleDuration, time.Since(start),
		observability.WithQueueURLMetric(p.cfg.QueueURL),
		observability.WithStatus(status),
	)

	if err != nil {
		return Action{}, fmt.Errorf("message %s: %w", aws.ToString(msg.MessageId), err)
	}

	return action, nil
}

// decodeBody decodes the packed textual body. Without strict decoding an
// undecodable body is logged and replaced with an empty object, so the
// handler still runs and the message can still be acknowledged.
func (p *Pipeline) decodeBody(ctx context.Context, msg sqstypes.Message) (codec.Value, error) {
	_, span := p.tracer.Span(ctx, observability.SpanNameDecode,
		observability.WithInternalSpanKind(),
		observability.WithQueueURL(p.cfg.QueueURL),
		observability.WithMessageID(msg.MessageId),
		observability.WithAction(observability.ActionDecode),
	)
	defer span.End()

	v, err := codec.Decode(aws.ToString(msg.Body))

	observability.RecordSpanResult(span, err)

	if err == nil {
		return v, nil
	}

	p.metrics.Counter(ctx, observability.MetricDecodeFailures, 1,
		observability.WithQueueURLMetric(p.cfg.QueueURL),
	)

	if p.cfg.StrictDecoding {
		return nil, fmt.Errorf("message %s: decode body: %w", aws.ToString(msg.MessageId), err)
	}

	p.logger.WarnContext(ctx, "message body is not decodable, falling back to empty object",
		"messageID", aws.ToString(msg.MessageId),
		"error", err,
	)

	return codec.EmptyObject(), nil
}

func actionLabel(a Action) observability.Action {
	if a.Type == ActionRequeue {
		return observability.ActionRequeue
	}

	return observability.ActionAcknowledge
}

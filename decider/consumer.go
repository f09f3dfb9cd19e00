// Package decider consumes messages from an SQS queue, runs a business
// handler against each decoded body and decides per message whether to
// acknowledge it or schedule redelivery after a delay. Messages that have
// been redelivered too many times are dropped from the stream and left to
// the queue's dead-letter handling.
package decider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/queueops/sqs-decider/decider/observability"
)

// SQSConsumer wires the poller, the decision pipeline and the execution
// sink into one consume loop.
type SQSConsumer struct {
	cfg      *Config
	poller   poller
	pipeline *Pipeline
	executor Executor

	middlewares []Middleware

	stoppedCh chan struct{}
	isRunning bool

	logger *slog.Logger

	mu sync.RWMutex
}

// poller feeds messages from the queue into a channel. It closes the
// channel when it returns and handles context cancellation itself.
type poller interface {
	Poll(ctx context.Context, queueURL string, ch chan<- sqstypes.Message) error
}

// NewSQSConsumer creates a consumer. Middlewares wrap the handler
// outermost-first. A nil logger discards all output.
func NewSQSConsumer(
	cfg *Config,
	sqsClient *sqs.Client,
	middlewares []Middleware,
	logger *slog.Logger,
) *SQSConsumer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return newSQSConsumer(cfg, sqsClient, middlewares, logger)
}

func newSQSConsumer(
	cfg *Config,
	sqsClient sqsConnector,
	middlewares []Middleware,
	logger *slog.Logger,
) *SQSConsumer {
	obs := cfg.Observability
	if obs == nil {
		obs = observability.NewConfig()
	}

	return &SQSConsumer{
		cfg: cfg,
		poller: newSQSPoller(pollerConfig{
			MaxNumberOfMessages:  cfg.MaxNumberOfMessages,
			WaitTimeSeconds:      cfg.WaitTimeSeconds,
			VisibilityTimeout:    cfg.VisibilityTimeout,
			ErrorNumberThreshold: cfg.ErrorNumberThreshold,
		}, sqsClient, logger, observability.NewMetrics(obs)),
		pipeline:    NewPipeline(cfg, logger),
		executor:    newSQSExecutor(cfg.QueueURL, sqsClient, obs),
		middlewares: middlewares,
		stoppedCh:   make(chan struct{}),
		logger:      logger,
	}
}

// Consume polls the queue and runs messages through the decision pipeline
// until ctx is cancelled or the polling error threshold stops the
// consumer. Element-level failures under the retry-on-failure policy are
// logged and the message is left to the queue's visibility timeout.
func (c *SQSConsumer) Consume(ctx context.Context, queueURL string, messageHandler Handler) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()

		return fmt.Errorf("consumer is already running")
	}

	c.isRunning = true
	c.stoppedCh = make(chan struct{})
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isRunning = false
		close(c.stoppedCh)
		c.mu.Unlock()
	}()

	var (
		// requires some tuning depending on handler latency and the
		// visibility timeout
		bufferSize = int(c.cfg.Parallelism) * 3

		msgs        = make(chan sqstypes.Message, bufferSize)
		pollErrCh   = make(chan error, 1)
		handlerFunc = newMessageHandlerFunc(messageHandler)

		runCtx, cancel = context.WithCancel(ctx)
	)

	defer cancel()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		handlerFunc = c.middlewares[i](handlerFunc)
	}

	go func() { pollErrCh <- c.poller.Poll(runCtx, queueURL, msgs) }()

	decisions, errs := c.pipeline.Run(runCtx, msgs, handlerFunc)

	for decisions != nil || errs != nil {
		select {
		case d, ok := <-decisions:
			if !ok {
				decisions = nil

				continue
			}

			if err := c.executor.Execute(runCtx, d); err != nil {
				c.logger.ErrorContext(runCtx, "failed to execute decision",
					"messageID", aws.ToString(d.Message.MessageId),
					"error", err,
				)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil

				continue
			}

			// fail open to the queue: the message reappears after its
			// visibility timeout
			c.logger.ErrorContext(runCtx, "message processing failed, left for redelivery",
				"error", err,
			)
		}
	}

	cancel()

	if err := <-pollErrCh; err != nil {
		return fmt.Errorf("poller stopped: %w", err)
	}

	return nil
}

// Close waits for the consumer to stop, up to the configured graceful
// shutdown timeout. The caller is expected to cancel the Consume context
// first.
func (c *SQSConsumer) Close() error {
	if !c.IsRunning() {
		return nil
	}

	c.logger.Debug("closing SQS consumer")

	c.mu.RLock()
	stopped := c.stoppedCh
	c.mu.RUnlock()

	select {
	case <-stopped:
		c.logger.Debug("SQS consumer stopped")

		return nil
	case <-time.After(c.cfg.GracefulShutdownTimeout):
		c.logger.Warn("SQS consumer did not stop in time")

		return fmt.Errorf("SQS consumer did not stop in time")
	}
}

// IsRunning reports whether Consume is active.
func (c *SQSConsumer) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.isRunning
}

func newMessageHandlerFunc(handler Handler) HandlerFunc {
	return handler.Handle
}

//go:generate mockery --name=sqsConnector --filename=mock_sqs_connector.go --inpackage
type sqsConnector interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

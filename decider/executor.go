package decider

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/queueops/sqs-decider/decider/observability"
)

// Executor applies a decision against the backing queue.
type Executor interface {
	Execute(ctx context.Context, d Decision) error
}

// ChangeVisibilityError reports a failed redelivery scheduling.
type ChangeVisibilityError struct {
	Err error
	Msg sqstypes.Message
}

func (e *ChangeVisibilityError) Error() string {
	return fmt.Sprintf("change visibility for msg %s: %s", aws.ToString(e.Msg.ReceiptHandle), e.Err)
}

func (e *ChangeVisibilityError) Unwrap() error {
	return e.Err
}

// SQSExecutor executes decisions on SQS: Acknowledge deletes the message,
// RequeueWithDelay changes its visibility timeout so it reappears after
// the delay.
type SQSExecutor struct {
	sqsClient sqsConnector
	queueURL  string
	tracer    observability.SQSTracer
	metrics   observability.SQSMetrics
}

// NewSQSExecutor creates an executor for the given queue.
func NewSQSExecutor(queueURL string, sqsClient *sqs.Client, obs *observability.Config) *SQSExecutor {
	return newSQSExecutor(queueURL, sqsClient, obs)
}

func newSQSExecutor(queueURL string, sqsClient sqsConnector, obs *observability.Config) *SQSExecutor {
	if obs == nil {
		obs = observability.NewConfig()
	}

	return &SQSExecutor{
		sqsClient: sqsClient,
		queueURL:  queueURL,
		tracer:    observability.NewTracer(obs),
		metrics:   observability.NewMetrics(obs),
	}
}

func (e *SQSExecutor) Execute(ctx context.Context, d Decision) error {
	action := actionLabel(d.Action)

	execCtx, span := e.tracer.Span(ctx, observability.SpanNameExecute,
		observability.WithClientSpanKind(),
		observability.WithQueueURL(e.queueURL),
		observability.WithMessageID(d.Message.MessageId),
		observability.WithAction(action),
	)
	defer span.End()

	start := time.Now()

	var err error

	switch d.Action.Type {
	case ActionAcknowledge:
		err = e.acknowledge(execCtx, d.Message)
	case ActionRequeue:
		err = e.requeue(execCtx, d.Message, d.Action.DelaySeconds)
	default:
		err = fmt.Errorf("unknown action type %d", d.Action.Type)
	}

	status := observability.RecordSpanResult(span, err)

	e.metrics.RecordDuration(ctx, observability.MetricExecuteDuration, time.Since(start),
		observability.WithQueueURLMetric(e.queueURL),
		observability.WithActionMetric(action),
		observability.WithStatus(status),
	)

	return err
}

func (e *SQSExecutor) acknowledge(ctx context.Context, msg sqstypes.Message) error {
	_, err := e.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(e.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		return fmt.Errorf("delete message %s: %w", aws.ToString(msg.ReceiptHandle), err)
	}

	return nil
}

func (e *SQSExecutor) requeue(ctx context.Context, msg sqstypes.Message, delaySeconds int32) error {
	_, err := e.sqsClient.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(e.queueURL),
		ReceiptHandle:     msg.ReceiptHandle,
		VisibilityTimeout: delaySeconds,
	})
	if err != nil {
		return &ChangeVisibilityError{Msg: msg, Err: err}
	}

	return nil
}

var _ Executor = (*SQSExecutor)(nil)

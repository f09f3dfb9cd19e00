package decider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cenkalti/backoff/v5"

	"github.com/queueops/sqs-decider/decider/observability"
)

type pollerConfig struct {
	MaxNumberOfMessages  int32
	WaitTimeSeconds      int32
	VisibilityTimeout    int32
	ErrorNumberThreshold int32
}

// sqsPoller long-polls the queue and feeds received messages into a
// channel. It always requests all queue attributes so the retry gate sees
// ApproximateReceiveCount.
type sqsPoller struct {
	cfg       pollerConfig
	sqsClient sqsConnector
	logger    *slog.Logger
	metrics   observability.SQSMetrics
}

func newSQSPoller(cfg pollerConfig, sqsClient sqsConnector, logger *slog.Logger, metrics observability.SQSMetrics) *sqsPoller {
	return &sqsPoller{
		cfg:       cfg,
		sqsClient: sqsClient,
		logger:    logger,
		metrics:   metrics,
	}
}

// errPollThresholdReached stops the consumer when polling keeps failing.
var errPollThresholdReached = errors.New("polling error threshold reached")

// Poll receives messages until ctx is cancelled or, if an error threshold
// is configured, until that many consecutive receive calls have failed.
// The message channel is closed when Poll returns.
func (p *sqsPoller) Poll(ctx context.Context, queueURL string, ch chan<- sqstypes.Message) error {
	defer close(ch)

	var (
		ebo        = backoff.NewExponentialBackOff()
		errorCount int32
	)

	ebo.InitialInterval = 100 * time.Millisecond
	ebo.MaxInterval = 2 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "poller stopped, context is canceled")

			return nil
		default:
		}

		result, err := p.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			AttributeNames: []sqstypes.QueueAttributeName{
				sqstypes.QueueAttributeNameAll,
			},
			MessageAttributeNames: []string{
				string(sqstypes.QueueAttributeNameAll),
			},
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: p.cfg.MaxNumberOfMessages,
			VisibilityTimeout:   p.cfg.VisibilityTimeout,
			WaitTimeSeconds:     p.cfg.WaitTimeSeconds,
		})

		p.metrics.Counter(ctx, observability.MetricPollingRequests, 1,
			observability.WithQueueURLMetric(queueURL),
		)

		if err != nil {
			if errors.Is(err, context.Canceled) {
				p.logger.InfoContext(ctx, "poller stopped, context is canceled")

				return nil
			}

			errorCount++

			p.logger.ErrorContext(ctx, "failed to poll messages from SQS",
				"error", err,
				"queueURL", queueURL,
				"errorCount", errorCount,
			)

			if p.cfg.ErrorNumberThreshold > 0 && errorCount >= p.cfg.ErrorNumberThreshold {
				return errPollThresholdReached
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(ebo.NextBackOff()):
			}

			continue
		}

		errorCount = 0

		ebo.Reset()

		for _, msg := range result.Messages {
			select {
			case <-ctx.Done():
				p.logger.InfoContext(ctx, "poller stopped, context is canceled")

				return nil
			case ch <- msg:
			}
		}
	}
}

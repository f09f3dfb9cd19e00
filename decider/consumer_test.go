package decider

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSQSConsumer_SuccessfulMessageIsDeleted(t *testing.T) {
	t.Parallel()

	var (
		sqsClient   = newMockSqsConnector(t)
		cfg         = newTestConfig(t)
		deleted     = make(chan string, 1)
		ctx, cancel = context.WithCancel(context.Background())
		errCh       = make(chan error, 1)
	)

	defer cancel()

	msg := sqstypes.Message{
		MessageId:     aws.String("m-1"),
		ReceiptHandle: aws.String("handle-1"),
		Body:          aws.String("7 0 0 0 0"), // encoded empty object
	}

	sqsClient.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{Messages: []sqstypes.Message{msg}}, nil).
		Once()
	sqsClient.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{}, nil).
		Maybe()
	sqsClient.On("DeleteMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			input := args.Get(1).(*sqs.DeleteMessageInput)
			deleted <- aws.ToString(input.ReceiptHandle)
		}).
		Return(&sqs.DeleteMessageOutput{}, nil).
		Once()

	consumer := newSQSConsumer(cfg, sqsClient, nil, slog.New(slog.DiscardHandler))

	go func() { errCh <- consumer.Consume(ctx, testQueueURL, succeedingHandler()) }()

	select {
	case handle := <-deleted:
		assert.Equal(t, "handle-1", handle)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not acknowledged")
	}

	cancel()

	require.NoError(t, <-errCh)
}

func TestSQSConsumer_FailedMessageIsRequeuedWithDelay(t *testing.T) {
	t.Parallel()

	var (
		sqsClient   = newMockSqsConnector(t)
		cfg         = newTestConfig(t, WithRequeueDelay(time.Minute))
		requeued    = make(chan int32, 1)
		ctx, cancel = context.WithCancel(context.Background())
		errCh       = make(chan error, 1)
	)

	defer cancel()

	msg := sqstypes.Message{
		MessageId:     aws.String("m-1"),
		ReceiptHandle: aws.String("handle-1"),
		Body:          aws.String("7 0 0 0 0"),
	}

	sqsClient.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{Messages: []sqstypes.Message{msg}}, nil).
		Once()
	sqsClient.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{}, nil).
		Maybe()
	sqsClient.On("ChangeMessageVisibility", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			input := args.Get(1).(*sqs.ChangeMessageVisibilityInput)
			requeued <- input.VisibilityTimeout
		}).
		Return(&sqs.ChangeMessageVisibilityOutput{}, nil).
		Once()

	consumer := newSQSConsumer(cfg, sqsClient, nil, slog.New(slog.DiscardHandler))

	go func() { errCh <- consumer.Consume(ctx, testQueueURL, failingHandler()) }()

	select {
	case timeout := <-requeued:
		assert.Equal(t, int32(60), timeout)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not requeued")
	}

	cancel()

	require.NoError(t, <-errCh)
}

func TestSQSConsumer_DroppedMessageTriggersNoQueueCall(t *testing.T) {
	t.Parallel()

	var (
		sqsClient   = newMockSqsConnector(t)
		cfg         = newTestConfig(t, WithMaxRetries(200))
		ctx, cancel = context.WithCancel(context.Background())
		errCh       = make(chan error, 1)
		received    = make(chan struct{})
	)

	defer cancel()

	msg := sqstypes.Message{
		MessageId:     aws.String("m-350"),
		ReceiptHandle: aws.String("handle-350"),
		Body:          aws.String("7 0 0 0 0"),
		Attributes:    map[string]string{"ApproximateReceiveCount": "350"},
	}

	sqsClient.On("ReceiveMessage", mock.Anything, mock.Anything).
		Run(func(_ mock.Arguments) { close(received) }).
		Return(&sqs.ReceiveMessageOutput{Messages: []sqstypes.Message{msg}}, nil).
		Once()
	sqsClient.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{}, nil).
		Maybe()
	// no DeleteMessage and no ChangeMessageVisibility expectations: any
	// queue call for the dropped message fails the test

	consumer := newSQSConsumer(cfg, sqsClient, nil, slog.New(slog.DiscardHandler))

	go func() { errCh <- consumer.Consume(ctx, testQueueURL, succeedingHandler()) }()

	<-received
	time.Sleep(100 * time.Millisecond)
	cancel()

	require.NoError(t, <-errCh)
}

func TestSQSConsumer_PollerErrorThresholdStopsConsumer(t *testing.T) {
	t.Parallel()

	var (
		sqsClient = newMockSqsConnector(t)
		cfg       = newTestConfig(t, WithErrorNumberThreshold(1))
	)

	sqsClient.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("service unavailable")).
		Once()

	consumer := newSQSConsumer(cfg, sqsClient, nil, slog.New(slog.DiscardHandler))

	err := consumer.Consume(context.Background(), testQueueURL, succeedingHandler())
	require.ErrorIs(t, err, errPollThresholdReached)
}

func TestSQSConsumer_ConsumeTwiceFails(t *testing.T) {
	t.Parallel()

	var (
		sqsClient   = newMockSqsConnector(t)
		cfg         = newTestConfig(t)
		ctx, cancel = context.WithCancel(context.Background())
		errCh       = make(chan error, 1)
	)

	defer cancel()

	sqsClient.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{}, nil).
		Maybe()

	consumer := newSQSConsumer(cfg, sqsClient, nil, slog.New(slog.DiscardHandler))

	go func() { errCh <- consumer.Consume(ctx, testQueueURL, succeedingHandler()) }()

	require.Eventually(t, consumer.IsRunning, time.Second, 10*time.Millisecond)

	err := consumer.Consume(ctx, testQueueURL, succeedingHandler())
	require.Error(t, err)
	assert.ErrorContains(t, err, "already running")

	cancel()

	require.NoError(t, <-errCh)
}

func TestSQSConsumer_MiddlewareSuppressesHandlerErrors(t *testing.T) {
	t.Parallel()

	var (
		sqsClient   = newMockSqsConnector(t)
		cfg         = newTestConfig(t)
		deleted     = make(chan struct{}, 1)
		ctx, cancel = context.WithCancel(context.Background())
		errCh       = make(chan error, 1)
	)

	defer cancel()

	msg := sqstypes.Message{
		MessageId:     aws.String("m-1"),
		ReceiptHandle: aws.String("handle-1"),
		Body:          aws.String("7 0 0 0 0"),
	}

	sqsClient.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{Messages: []sqstypes.Message{msg}}, nil).
		Once()
	sqsClient.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{}, nil).
		Maybe()
	sqsClient.On("DeleteMessage", mock.Anything, mock.Anything).
		Run(func(_ mock.Arguments) { deleted <- struct{}{} }).
		Return(&sqs.DeleteMessageOutput{}, nil).
		Once()

	middlewares := []Middleware{NewIgnoreErrorsMiddleware(nil)}
	consumer := newSQSConsumer(cfg, sqsClient, middlewares, slog.New(slog.DiscardHandler))

	// the handler always fails; the middleware acknowledges anyway
	go func() { errCh <- consumer.Consume(ctx, testQueueURL, failingHandler()) }()

	select {
	case <-deleted:
	case <-time.After(2 * time.Second):
		t.Fatal("suppressed failure was not acknowledged")
	}

	cancel()

	require.NoError(t, <-errCh)
}

func TestSQSConsumer_CloseWhenNotRunning(t *testing.T) {
	t.Parallel()

	consumer := newSQSConsumer(newTestConfig(t), newMockSqsConnector(t), nil, slog.New(slog.DiscardHandler))

	require.NoError(t, consumer.Close())
}

func TestSQSConsumer_CloseWaitsForShutdown(t *testing.T) {
	t.Parallel()

	var (
		sqsClient   = newMockSqsConnector(t)
		cfg         = newTestConfig(t, WithGracefulShutdownTimeout(2*time.Second))
		ctx, cancel = context.WithCancel(context.Background())
		errCh       = make(chan error, 1)
	)

	sqsClient.On("ReceiveMessage", mock.Anything, mock.Anything).
		Return(&sqs.ReceiveMessageOutput{}, nil).
		Maybe()

	consumer := newSQSConsumer(cfg, sqsClient, nil, slog.New(slog.DiscardHandler))

	go func() { errCh <- consumer.Consume(ctx, testQueueURL, succeedingHandler()) }()

	require.Eventually(t, consumer.IsRunning, time.Second, 10*time.Millisecond)

	cancel()

	require.NoError(t, consumer.Close())
	require.NoError(t, <-errCh)
	assert.False(t, consumer.IsRunning())
}

package decider

import (
	"fmt"
	"net/url"
	"time"

	"github.com/queueops/sqs-decider/decider/observability"
)

// Default values for pipeline configuration.
const (
	// DefaultMaxRetries is the receive-count ceiling beyond which messages
	// are dropped from the pipeline.
	DefaultMaxRetries = 200
	// DefaultParallelism is the number of concurrent handler invocations.
	DefaultParallelism = 10
	// DefaultMaxNumberOfMessages is the batch size for a single poll.
	DefaultMaxNumberOfMessages = 10
	// DefaultWaitTimeSeconds is the long-poll wait time.
	DefaultWaitTimeSeconds = 1
	// DefaultVisibilityTimeout hides received messages for this many seconds.
	DefaultVisibilityTimeout = 30
	// DefaultErrorNumberThreshold disables the poller error threshold.
	DefaultErrorNumberThreshold = -1
	// DefaultGracefulShutdownTimeout bounds Close.
	DefaultGracefulShutdownTimeout = 30 * time.Second
)

// maxRequeueDelay is the SQS ceiling on visibility timeouts.
const maxRequeueDelay = 12 * time.Hour

// WrongConfigError reports an invalid configuration value.
type WrongConfigError struct {
	Err error
}

func (e *WrongConfigError) Error() string {
	return fmt.Sprintf("wrong config: %s", e.Err)
}

func (e *WrongConfigError) Unwrap() error {
	return e.Err
}

// Config configures the decision pipeline and its SQS source and sink.
type Config struct {
	Observability *observability.Config
	QueueURL      string

	// RequeueDelay selects the failure policy. A positive delay converts
	// handler failures into RequeueWithDelay decisions; zero or negative
	// selects the retry-on-failure policy, which leaves failed messages to
	// the queue's visibility timeout.
	RequeueDelay time.Duration

	// MaxRetries is the receive-count ceiling. Messages whose
	// ApproximateReceiveCount is at or above it are dropped.
	MaxRetries int32

	// Parallelism bounds concurrent handler invocations.
	Parallelism int32

	MaxNumberOfMessages     int32
	WaitTimeSeconds         int32
	VisibilityTimeout       int32
	ErrorNumberThreshold    int32
	GracefulShutdownTimeout time.Duration

	// StrictDecoding routes decode failures through the failure policy
	// instead of falling back to an empty object.
	StrictDecoding bool
}

// Option configures a Config.
type Option interface {
	apply(*Config)
}

type option func(*Config)

func (o option) apply(c *Config) {
	o(c)
}

// NewConfig creates a Config for the given queue URL, applies the options
// and validates the result.
func NewConfig(queueURL string, opts ...Option) (*Config, error) {
	c := &Config{
		QueueURL:                queueURL,
		MaxRetries:              DefaultMaxRetries,
		Parallelism:             DefaultParallelism,
		MaxNumberOfMessages:     DefaultMaxNumberOfMessages,
		WaitTimeSeconds:         DefaultWaitTimeSeconds,
		VisibilityTimeout:       DefaultVisibilityTimeout,
		ErrorNumberThreshold:    DefaultErrorNumberThreshold,
		GracefulShutdownTimeout: DefaultGracefulShutdownTimeout,
		Observability:           observability.NewConfig(), // disabled by default
	}

	for _, opt := range opts {
		opt.apply(c)
	}

	if _, err := c.IsValid(); err != nil {
		return nil, err
	}

	return c, nil
}

// WithRequeueDelay sets the redelivery delay for failed messages and
// thereby selects the fixed-delay requeue policy.
func WithRequeueDelay(delay time.Duration) Option {
	return option(func(c *Config) {
		c.RequeueDelay = delay
	})
}

// WithMaxRetries sets the receive-count ceiling.
func WithMaxRetries(maxRetries int32) Option {
	return option(func(c *Config) {
		c.MaxRetries = maxRetries
	})
}

// WithParallelism sets the number of concurrent handler invocations.
func WithParallelism(parallelism int32) Option {
	return option(func(c *Config) {
		c.Parallelism = parallelism
	})
}

// WithMaxNumberOfMessages sets the maximum number of messages received in
// a single poll.
func WithMaxNumberOfMessages(maxMessages int32) Option {
	return option(func(c *Config) {
		c.MaxNumberOfMessages = maxMessages
	})
}

// WithWaitTimeSeconds sets the long-poll wait time.
func WithWaitTimeSeconds(wait int32) Option {
	return option(func(c *Config) {
		c.WaitTimeSeconds = wait
	})
}

// WithVisibilityTimeout sets the visibility timeout for received messages.
func WithVisibilityTimeout(timeout int32) Option {
	return option(func(c *Config) {
		c.VisibilityTimeout = timeout
	})
}

// WithErrorNumberThreshold sets the number of consecutive polling errors
// after which the consumer stops.
func WithErrorNumberThreshold(threshold int32) Option {
	return option(func(c *Config) {
		c.ErrorNumberThreshold = threshold
	})
}

// WithGracefulShutdownTimeout bounds how long Close waits for the consumer
// to stop.
func WithGracefulShutdownTimeout(timeout time.Duration) Option {
	return option(func(c *Config) {
		c.GracefulShutdownTimeout = timeout
	})
}

// WithStrictDecoding makes decode failures follow the failure policy
// instead of the empty-object fallback.
func WithStrictDecoding() Option {
	return option(func(c *Config) {
		c.StrictDecoding = true
	})
}

// WithObservability sets the observability configuration.
func WithObservability(obs *observability.Config) Option {
	return option(func(c *Config) {
		c.Observability = obs
	})
}

// IsValid checks the configuration against SQS bounds.
func (c *Config) IsValid() (bool, error) { // nolint: cyclop
	if c.QueueURL == "" {
		return false, &WrongConfigError{Err: fmt.Errorf("queueURL is empty")}
	}

	if _, err := url.ParseRequestURI(c.QueueURL); err != nil {
		return false, &WrongConfigError{Err: fmt.Errorf("queueURL is not a valid URL")}
	}

	if c.MaxRetries <= 0 {
		return false, &WrongConfigError{Err: fmt.Errorf("maxRetries must be greater than 0")}
	}

	if c.Parallelism <= 0 {
		return false, &WrongConfigError{Err: fmt.Errorf("parallelism must be greater than 0")}
	}

	if c.RequeueDelay > maxRequeueDelay {
		return false, &WrongConfigError{Err: fmt.Errorf("requeueDelay must not exceed %s", maxRequeueDelay)}
	}

	if c.MaxNumberOfMessages <= 0 || c.MaxNumberOfMessages > 10 {
		return false, &WrongConfigError{Err: fmt.Errorf("maxNumberOfMessages must be between 1 and 10")}
	}

	if c.WaitTimeSeconds < 0 || c.WaitTimeSeconds > 20 {
		return false, &WrongConfigError{Err: fmt.Errorf("waitTimeSeconds must be between 0 and 20")}
	}

	if c.VisibilityTimeout < 0 || c.VisibilityTimeout > 43200 {
		return false, &WrongConfigError{Err: fmt.Errorf("visibilityTimeout must be between 0 and 43200")}
	}

	return true, nil
}

// requeueDelaySeconds converts the configured delay to whole seconds.
func (c *Config) requeueDelaySeconds() int32 {
	return int32(c.RequeueDelay / time.Second) // nolint:gosec // bounded by maxRequeueDelay
}

// usesRequeuePolicy reports whether a usable delay is configured.
func (c *Config) usesRequeuePolicy() bool {
	return c.RequeueDelay > 0
}

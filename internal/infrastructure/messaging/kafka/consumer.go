package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/rid-registry/internal/config"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

// ConsumerConfig holds configuration for the Consumer.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topic        string
	MaxRetries   int
	RetryBackoff time.Duration
}

// ConsumerConfigFrom maps the kafka configuration section onto the upload
// listener.
func ConsumerConfigFrom(cfg config.KafkaConfig) ConsumerConfig {
	return ConsumerConfig{Brokers: cfg.Brokers, GroupID: cfg.GroupID, Topic: cfg.UploadTopic}
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageHandler processes one fetched message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Consumer reads one topic in a consumer group and commits each message
// after its handler returns, successful or not.
type Consumer struct {
	reader  ReaderInterface
	config  ConsumerConfig
	logger  logging.Logger
	running atomic.Bool

	processed atomic.Int64
	failed    atomic.Int64
}

// NewConsumer creates a Consumer.
func NewConsumer(cfg ConsumerConfig, logger logging.Logger) (*Consumer, error) {
	if err := ValidateConsumerConfig(cfg); err != nil {
		return nil, err
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10 * 1024 * 1024,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumerWithReader(reader, cfg, logger), nil
}

func newConsumerWithReader(r ReaderInterface, cfg ConsumerConfig, logger logging.Logger) *Consumer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Consumer{reader: r, config: cfg, logger: logger}
}

// Run consumes until ctx is cancelled.  It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context, handler MessageHandler) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)
	c.logger.Info("kafka consumer started",
		logging.String("group", c.config.GroupID), logging.String("topic", c.config.Topic))

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("fetch failed", logging.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		msg := &Message{Topic: m.Topic, Key: m.Key, Value: m.Value, Timestamp: m.Time, Headers: map[string]string{}}
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
		if err := c.process(ctx, msg, handler); err != nil {
			c.failed.Add(1)
			c.logger.Error("message dropped after retries",
				logging.Int64("offset", m.Offset), logging.Err(err))
		} else {
			c.processed.Add(1)
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", logging.Err(err))
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg *Message, handler MessageHandler) error {
	err := handler(ctx, msg)
	backoff := c.config.RetryBackoff
	for i := 0; err != nil && i < c.config.MaxRetries && isRetryable(err); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		err = handler(ctx, msg)
	}
	return err
}

// isRetryable reports whether err may succeed on a later attempt.  Bad
// payloads never do.
func isRetryable(err error) bool {
	return !errors.IsCode(err, errors.ErrCodeSerialization) &&
		!errors.IsCode(err, errors.ErrCodeValidation) &&
		!errors.IsCode(err, errors.CodeInvalidParam)
}

// Stats returns the processed and failed counters.
func (c *Consumer) Stats() (processed, failed int64) {
	return c.processed.Load(), c.failed.Load()
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func ValidateConsumerConfig(cfg ConsumerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "brokers required")
	}
	if cfg.GroupID == "" {
		return errors.New(errors.ErrCodeValidation, "group id required")
	}
	if cfg.Topic == "" {
		return errors.New(errors.ErrCodeValidation, "topic required")
	}
	return nil
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/synaptica-ai/riskscore/pkg/common/config"
	"github.com/synaptica-ai/riskscore/pkg/common/logger"
	"github.com/synaptica-ai/riskscore/pkg/common/models"
)

// MessageReader is the subset of *kafka.Reader the consumer drives.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader    MessageReader
	attempts  int
	baseDelay time.Duration
}

const (
	defaultAttempts  = 5
	defaultBaseDelay = 500 * time.Millisecond
)

type EventHandler func(ctx context.Context, event models.Event) error

func NewConsumer(cfg *config.Config, topic string, groupID string) *Consumer {
	if groupID == "" {
		groupID = cfg.KafkaGroupID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return NewConsumerWithReader(reader)
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(reader MessageReader) *Consumer {
	return &Consumer{reader: reader, attempts: defaultAttempts, baseDelay: defaultBaseDelay}
}

// WithRetry sets how often a failing handler is retried for one message.
func (c *Consumer) WithRetry(attempts int, baseDelay time.Duration) *Consumer {
	c.attempts = attempts
	c.baseDelay = baseDelay
	return c
}

// Consume runs handler for every message until ctx is done or the reader
// is closed. Undecodable messages are committed and skipped. A failing
// handler is retried with exponential backoff; once the attempts are used up
// the message is logged and committed, since committing a later offset would
// skip it anyway.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	fetchFailures := 0
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return err
			}
			fetchFailures++
			delay := c.backoff(fetchFailures)
			logger.Get().WithError(err).WithFields(map[string]interface{}{
				"failures": fetchFailures,
				"retry_in": delay.String(),
			}).Error("Failed to fetch message")
			if err := wait(ctx, delay); err != nil {
				return err
			}
			continue
		}
		fetchFailures = 0

		var event models.Event
		if err := json.Unmarshal(message.Value, &event); err != nil {
			logger.Get().WithError(err).WithFields(map[string]interface{}{
				"topic":  message.Topic,
				"offset": message.Offset,
			}).Error("Failed to unmarshal event")
			if err := c.reader.CommitMessages(ctx, message); err != nil {
				logger.Get().WithError(err).Error("Failed to commit message")
			}
			continue
		}

		if err := c.retry(ctx, func() error { return handler(ctx, event) }); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Get().WithError(err).WithFields(map[string]interface{}{
				"event_id": event.ID,
				"attempts": c.attempts,
			}).Error("Failed to process event, skipping")
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			logger.Get().WithError(err).Error("Failed to commit message")
		}
	}
}

func (c *Consumer) retry(ctx context.Context, fn func() error) error {
	err := fn()
	for attempt := 1; err != nil && attempt < c.attempts; attempt++ {
		if werr := wait(ctx, c.backoff(attempt)); werr != nil {
			return werr
		}
		err = fn()
	}
	return err
}

// backoff doubles baseDelay per failure, capped at the delay before the
// last handler attempt.
func (c *Consumer) backoff(failures int) time.Duration {
	steps := failures - 1
	if limit := c.attempts - 2; steps > limit {
		steps = limit
	}
	if steps < 0 {
		steps = 0
	}
	return c.baseDelay << uint(steps)
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const readRetryDelay = 5 * time.Second

type Delivery struct {
	Event     Event
	Partition int
	Offset    int64
	Time      time.Time
}

// Consumer tails the audit topic as part of a consumer group.
type Consumer struct {
	reader *kafka.Reader
	logger *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       10e3,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
			MaxWait:        3 * time.Second,
		}),
		logger: logger.With(zap.String("component", "audit_consumer"), zap.String("topic", topic)),
	}
}

// Run reads until ctx is cancelled. Undecodable messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handle func(Delivery)) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Warn("failed to read message", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readRetryDelay):
			}
			continue
		}

		var event Event
		if err := json.Unmarshal(m.Value, &event); err != nil {
			c.logger.Warn("skipping undecodable audit message",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
			continue
		}

		handle(Delivery{Event: event, Partition: m.Partition, Offset: m.Offset, Time: m.Time})
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

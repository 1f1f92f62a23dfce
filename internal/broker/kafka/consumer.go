package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает топик по одному сообщению и коммитит offset только после
// успешной обработки.
type Consumer struct {
	r messageReader

	retries    int
	retryDelay time.Duration
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		StartOffset:       kafka.FirstOffset,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r:          kafka.NewReader(cfg),
		retries:    3,
		retryDelay: 500 * time.Millisecond,
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

// WithRetry задаёт число повторов обработчика для одного сообщения.
// Пауза растёт линейно: delay, 2*delay, ...
func (c *Consumer) WithRetry(retries int, delay time.Duration) *Consumer {
	c.retries = retries
	c.retryDelay = delay
	return c
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume блокируется до ошибки чтения или до исчерпания повторов
// обработчика. Несохранённое сообщение будет прочитано снова после рестарта.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := c.handle(ctx, msg, handler); err != nil {
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler func(key, value []byte) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = handler(msg.Key, msg.Value); err == nil {
			return nil
		}
		if attempt >= c.retries {
			return errors.Wrapf(err, "handle message partition=%d offset=%d", msg.Partition, msg.Offset)
		}
		log.WithFields(log.Fields{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"attempt":   attempt + 1,
		}).WithError(err).Warn("kafka handler failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * c.retryDelay):
		}
	}
}

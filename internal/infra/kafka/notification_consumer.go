package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/infra/logger"
)

// NotificationConsumerOptions controls redelivery handling.
type NotificationConsumerOptions struct {
	MaxAttempts int
	Backoff     time.Duration
}

// NotificationConsumer delivers queued notifications through a Notifier,
// consulting the ledger so redelivered messages are sent once.
type NotificationConsumer struct {
	sender      port.Notifier
	ledger      port.DispatchLedger
	logger      *zap.Logger
	maxAttempts int
	backoff     time.Duration
}

// NewNotificationConsumer constructs a consumer around the delivery channel.
func NewNotificationConsumer(sender port.Notifier, ledger port.DispatchLedger, logger *zap.Logger, opts NotificationConsumerOptions) *NotificationConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &NotificationConsumer{
		sender:      sender,
		ledger:      ledger,
		logger:      logger,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	if c.backoff <= 0 {
		c.backoff = time.Second
	}
	return c
}

// HandleMessage decodes and delivers a single Kafka message.
func (c *NotificationConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return errors.New("message is nil")
	}

	notification, err := decodeNotification(msg.Value)
	if err != nil {
		return err
	}

	if c.ledger != nil {
		claimed, err := c.ledger.Claim(ctx, notification.Key)
		if err != nil {
			return fmt.Errorf("claim notification %s: %w", notification.Key, err)
		}
		if !claimed {
			c.logger.Debug("skip already delivered notification",
				zap.String("key", notification.Key),
				zap.String("template", string(notification.Template)),
			)
			return nil
		}
	}

	if err := c.sender.Send(ctx, notification); err != nil {
		if c.ledger != nil {
			if releaseErr := c.ledger.Release(ctx, notification.Key); releaseErr != nil {
				c.logger.Warn("release notification claim failed", zap.String("key", notification.Key), zap.Error(releaseErr))
			}
		}
		return fmt.Errorf("deliver notification %s: %w", notification.Key, err)
	}

	c.logger.Info("notification delivered",
		zap.String("key", notification.Key),
		zap.String("template", string(notification.Template)),
		zap.String("to", logger.MaskEmail(notification.To)),
	)
	return nil
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *NotificationConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *NotificationConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim delivers each message, retrying with backoff, then marks it.
// Messages that still fail after MaxAttempts are logged and skipped.
func (c *NotificationConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.deliverWithRetry(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("dropping notification after retries",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *NotificationConsumer) deliverWithRetry(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.HandleMessage(ctx, msg); err == nil {
			return nil
		}
		c.logger.Warn("notification delivery attempt failed",
			zap.Int("attempt", attempt),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-time.After(c.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// RunConsumerGroup consumes topics until ctx is cancelled or the group closes.
func RunConsumerGroup(ctx context.Context, group sarama.ConsumerGroup, topics []string, handler sarama.ConsumerGroupHandler, log *zap.Logger) error {
	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			log.Error("consumer group session ended", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// NewConsumerGroup builds a Sarama consumer group that starts from the oldest offset.
func NewConsumerGroup(brokers []string, groupID string) (sarama.ConsumerGroup, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return group, nil
}

var _ sarama.ConsumerGroupHandler = (*NotificationConsumer)(nil)

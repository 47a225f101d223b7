package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ritaorion/district5b-portal/internal/infra/config"
)

// Producer wraps a Sarama SyncProducer so callers learn whether the broker
// accepted each message.
type Producer struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
}

// NewProducer initializes a Kafka sync producer.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0

	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Retry.Backoff = 200 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)

	return newProducer(producer, cfg, logger), nil
}

func newProducer(producer sarama.SyncProducer, cfg config.KafkaSettings, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{producer: producer, logger: logger, cfg: cfg}
}

// Send publishes one message and blocks until the broker acknowledges it.
func (p *Producer) Send(msg *sarama.ProducerMessage) (int32, int64, error) {
	return p.producer.SendMessage(msg)
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName returns the full topic name with prefix
func (p *Producer) TopicName(topic string) string {
	return TopicName(p.cfg.TopicPrefix, topic)
}

// TopicName joins prefix and topic unless the topic is already qualified.
func TopicName(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	qualified := prefix + "."
	if strings.HasPrefix(topic, qualified) {
		return topic
	}
	return qualified + topic
}

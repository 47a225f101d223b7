package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/infra/config"
	"github.com/ritaorion/district5b-portal/internal/infra/logger"
)

const schemaVersion = "1.0"

// notificationEnvelope is the wire format shared by the API and the mailer.
type notificationEnvelope struct {
	EventID   string            `json:"event_id"`
	Key       string            `json:"key"`
	Template  string            `json:"template"`
	To        string            `json:"to"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Version   string            `json:"version"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Notifier implements port.Notifier by handing notifications to Kafka for the
// mailer worker. Delivery means the broker acknowledged the message.
type Notifier struct {
	producer *Producer
	topic    string
	appCfg   config.AppSettings
	logger   *zap.Logger
}

// NewNotifier constructs a Kafka-backed notifier publishing to topic.
func NewNotifier(producer *Producer, topic string, appCfg config.AppSettings, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{producer: producer, topic: topic, appCfg: appCfg, logger: logger}
}

// Send publishes the notification keyed by its transition key.
func (n *Notifier) Send(ctx context.Context, notification domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return &domain.DeliveryFailure{Template: notification.Template, Reason: "request cancelled", Err: err}
	}

	createdAt := notification.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	metadata := map[string]string{
		"service":     n.appCfg.Name,
		"environment": n.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := notificationEnvelope{
		EventID:   uuid.NewString(),
		Key:       notification.Key,
		Template:  string(notification.Template),
		To:        notification.To,
		Data:      notification.Data,
		CreatedAt: createdAt.UTC(),
		Version:   schemaVersion,
		Metadata:  metadata,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return &domain.DeliveryFailure{Template: notification.Template, Reason: "encode notification", Err: err}
	}

	message := &sarama.ProducerMessage{
		Topic: n.producer.TopicName(n.topic),
		Key:   sarama.StringEncoder(notification.Key),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := n.producer.Send(message)
	if err != nil {
		return &domain.DeliveryFailure{
			Template: notification.Template,
			Reason:   "notification broker unavailable",
			Err:      fmt.Errorf("publish notification: %w", err),
		}
	}

	n.logger.Debug("notification queued",
		zap.String("template", string(notification.Template)),
		zap.String("to", logger.MaskEmail(notification.To)),
		zap.String("topic", message.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func decodeNotification(value []byte) (domain.Notification, error) {
	var envelope notificationEnvelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return domain.Notification{}, fmt.Errorf("decode notification envelope: %w", err)
	}

	template := domain.NotificationTemplate(envelope.Template)
	if !template.Valid() {
		return domain.Notification{}, fmt.Errorf("unknown notification template %q", envelope.Template)
	}
	if envelope.To == "" {
		return domain.Notification{}, fmt.Errorf("notification %s has no recipient", envelope.Key)
	}

	key := envelope.Key
	if key == "" {
		key = envelope.EventID
	}

	return domain.Notification{
		Key:       key,
		Template:  template,
		To:        envelope.To,
		Data:      envelope.Data,
		CreatedAt: envelope.CreatedAt,
	}, nil
}

var _ port.Notifier = (*Notifier)(nil)

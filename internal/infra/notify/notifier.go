package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/infra/logger"
	"github.com/ritaorion/district5b-portal/internal/infra/mail"
)

type mailSender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// MailNotifier renders notifications and sends them over SMTP.
type MailNotifier struct {
	renderer *Renderer
	sender   mailSender
	logger   *zap.Logger
}

// NewMailNotifier constructs an SMTP-backed notifier.
func NewMailNotifier(renderer *Renderer, sender mailSender, log *zap.Logger) *MailNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &MailNotifier{renderer: renderer, sender: sender, logger: log}
}

// Send renders and delivers the notification.
func (n *MailNotifier) Send(ctx context.Context, notification domain.Notification) error {
	msg, err := n.renderer.Render(notification)
	if err != nil {
		return &domain.DeliveryFailure{Template: notification.Template, Reason: "render template", Err: err}
	}

	if err := n.sender.Send(ctx, msg); err != nil {
		return &domain.DeliveryFailure{
			Template: notification.Template,
			Reason:   "mail server unavailable",
			Err:      fmt.Errorf("send mail: %w", err),
		}
	}
	return nil
}

// LogNotifier records notifications in the log instead of sending them. Only the
// template, key and masked address are logged; payload values may hold
// credential-setup links and are never written.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a development notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{logger: log}
}

// Send logs the notification and always reports success.
func (n *LogNotifier) Send(_ context.Context, notification domain.Notification) error {
	n.logger.Info("notification dispatched",
		zap.String("driver", "log"),
		zap.String("template", string(notification.Template)),
		zap.String("key", notification.Key),
		zap.String("to", logger.MaskEmail(notification.To)),
	)
	return nil
}

var (
	_ port.Notifier = (*MailNotifier)(nil)
	_ port.Notifier = (*LogNotifier)(nil)
)

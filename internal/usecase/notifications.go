package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/infra/logger"
)

const defaultDeliveryTimeout = 10 * time.Second

// NotificationMetrics records notification delivery outcomes.
type NotificationMetrics interface {
	ObserveNotification(template string, delivered bool)
}

// dispatcher sends a notification once after the owning state change has
// committed. Failures never undo the change; they surface in the report.
type dispatcher struct {
	notifier port.Notifier
	logger   *zap.Logger
	metrics  NotificationMetrics
	timeout  time.Duration
}

func newDispatcher(notifier port.Notifier, log *zap.Logger) *dispatcher {
	return &dispatcher{notifier: notifier, logger: log, timeout: defaultDeliveryTimeout}
}

func (d *dispatcher) dispatch(ctx context.Context, n domain.Notification) domain.DeliveryReport {
	report := domain.DeliveryReport{Template: n.Template}
	log := logger.WithContext(ctx, d.logger).With(
		zap.String("template", string(n.Template)),
		zap.String("notification_key", n.Key),
		zap.String("to", logger.MaskEmail(n.To)),
	)

	if d.notifier == nil {
		report.Reason = "notification channel not configured"
		log.Warn("notification skipped")
		d.observe(report)
		return report
	}

	// The request may already be cancelled by the time the change commits.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.notifier.Send(sendCtx, n); err != nil {
		var failure *domain.DeliveryFailure
		if errors.As(err, &failure) && failure.Reason != "" {
			report.Reason = failure.Reason
		} else {
			report.Reason = "delivery failed"
		}
		log.Warn("notification delivery failed", zap.String("reason", report.Reason), zap.Error(err))
		d.observe(report)
		return report
	}

	report.Delivered = true
	log.Debug("notification delivered")
	d.observe(report)
	return report
}

func (d *dispatcher) observe(report domain.DeliveryReport) {
	if d.metrics != nil {
		d.metrics.ObserveNotification(string(report.Template), report.Delivered)
	}
}

package port

import (
	"context"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
)

// Notifier attempts delivery of a notification once per call.
// A non-nil error means the message was not accepted by the channel.
type Notifier interface {
	Send(ctx context.Context, notification domain.Notification) error
}

// DispatchLedger records which notification keys were already delivered so
// redelivered messages are dropped.
type DispatchLedger interface {
	// Claim returns true when the key had not been claimed before.
	Claim(ctx context.Context, key string) (bool, error)
	// Release drops a claim after a failed delivery so a retry may proceed.
	Release(ctx context.Context, key string) error
}

package port

import (
	"context"
	"time"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
)

// ProvisioningTokenRepository manages credential-setup tokens.
type ProvisioningTokenRepository interface {
	// Issue revokes every outstanding token for the account and stores the new one atomically.
	// repository.ErrAccountActive means the account already holds a credential.
	Issue(ctx context.Context, token domain.ProvisioningToken) error
	GetByHash(ctx context.Context, hash string) (*domain.ProvisioningToken, error)
	// Latest returns the most recently issued token for the account.
	Latest(ctx context.Context, accountID string) (*domain.ProvisioningToken, error)
	// Redeem consumes a usable token and sets the bound account's credential in one
	// atomic step, returning the activated account id. repository.ErrNotFound means
	// no usable token matched.
	Redeem(ctx context.Context, hash, credentialHash string, at time.Time) (string, error)
}

package port

import (
	"context"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
)

// AccountRepository persists staff accounts.
type AccountRepository interface {
	// Create inserts a new account, returning repository.ErrConflict if the
	// username or email is already taken.
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	// GetByLogin looks an account up by username or email.
	GetByLogin(ctx context.Context, identifier string) (*domain.Account, error)
}

package domain

import "time"

// ProvisioningToken is a single-use, time-bounded capability to set the first
// credential on an account. Only the hash of the raw token is stored.
type ProvisioningToken struct {
	ID         string
	AccountID  string
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	RevokedAt  *time.Time
}

// IsExpired reports whether the token has elapsed its validity window.
func (t ProvisioningToken) IsExpired(at time.Time) bool {
	return !at.Before(t.ExpiresAt)
}

// IsUsable reports whether the token can still be redeemed: unexpired, unconsumed and unrevoked.
func (t ProvisioningToken) IsUsable(at time.Time) bool {
	if t.ConsumedAt != nil || t.RevokedAt != nil {
		return false
	}
	return !t.IsExpired(at)
}

// Consume marks the token as used.
// Returns true when the token transitions from unused to used.
func (t *ProvisioningToken) Consume(at time.Time) bool {
	if t.ConsumedAt != nil {
		return false
	}
	timeCopy := at
	t.ConsumedAt = &timeCopy
	return true
}

// Revoke marks the token as revoked.
// Returns true when the token transitions to the revoked state.
func (t *ProvisioningToken) Revoke(at time.Time) bool {
	if t.RevokedAt != nil {
		return false
	}
	timeCopy := at
	t.RevokedAt = &timeCopy
	return true
}

package domain

import "time"

// Account is a staff account. Accounts are created without a usable credential
// and become active once a provisioning token is redeemed.
type Account struct {
	ID             string
	Username       string
	Email          string
	FirstName      string
	LastName       string
	DisplayName    string
	IsAdmin        bool
	CredentialSet  bool
	CredentialHash string
	CreatedAt      time.Time
	ActivatedAt    *time.Time
}

// CanAuthenticate reports whether the account may use normal login.
func (a Account) CanAuthenticate() bool {
	return a.CredentialSet && a.CredentialHash != ""
}

// Name returns the display name, falling back to first/last name and then username.
func (a Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	full := a.FirstName
	if a.LastName != "" {
		if full != "" {
			full += " "
		}
		full += a.LastName
	}
	if full != "" {
		return full
	}
	return a.Username
}

// ProvisioningState is the derived state of an account and its setup tokens.
type ProvisioningState string

const (
	ProvisioningPending ProvisioningState = "provisioned-pending"
	ProvisioningExpired ProvisioningState = "provisioned-expired"
	ProvisioningActive  ProvisioningState = "active"
)

// DeriveProvisioningState computes the account state from the account row and the
// latest token issued for it (nil when none exists).
func DeriveProvisioningState(account Account, latest *ProvisioningToken, at time.Time) ProvisioningState {
	if account.CredentialSet {
		return ProvisioningActive
	}
	if latest != nil && latest.IsUsable(at) {
		return ProvisioningPending
	}
	return ProvisioningExpired
}

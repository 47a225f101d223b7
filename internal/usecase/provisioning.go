package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/infra/logger"
	"github.com/ritaorion/district5b-portal/internal/infra/security"
	"github.com/ritaorion/district5b-portal/internal/repository"
)

const (
	defaultProvisioningTTL = 24 * time.Hour
	setupPath              = "/setup"
	expiryLayout           = "2006-01-02 15:04 MST"
)

// ProvisioningMetrics records provisioning lifecycle events.
type ProvisioningMetrics interface {
	NotificationMetrics
	ObserveProvisioning(event string)
}

// CreateAccountInput describes a new staff account.
type CreateAccountInput struct {
	Username    string `json:"username" validate:"required,min=3,max=64,username"`
	Email       string `json:"email" validate:"required,email,max=254"`
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	DisplayName string `json:"display_name" validate:"max=100"`
	IsAdmin     bool   `json:"is_admin"`
}

// ProvisioningResult is returned whenever a setup link is issued.
type ProvisioningResult struct {
	Account      domain.Account
	State        domain.ProvisioningState
	ExpiresAt    time.Time
	Notification domain.DeliveryReport
}

// AccountView is an account with its derived provisioning state.
type AccountView struct {
	Account        domain.Account
	State          domain.ProvisioningState
	TokenExpiresAt *time.Time
}

// ProvisioningService creates staff accounts and redeems their setup tokens.
type ProvisioningService struct {
	accounts port.AccountRepository
	tokens   port.ProvisioningTokenRepository
	hasher   port.CredentialHasher
	policy   port.CredentialPolicy
	issuer   *security.TokenIssuer
	notify   *dispatcher
	baseURL  string
	ttl      time.Duration

	validator *inputValidator
	metrics   ProvisioningMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewProvisioningService constructs a ProvisioningService. publicBaseURL is the
// portal origin that setup links point at.
func NewProvisioningService(
	accounts port.AccountRepository,
	tokens port.ProvisioningTokenRepository,
	hasher port.CredentialHasher,
	policy port.CredentialPolicy,
	notifier port.Notifier,
	publicBaseURL string,
	log *zap.Logger,
) *ProvisioningService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProvisioningService{
		accounts:  accounts,
		tokens:    tokens,
		hasher:    hasher,
		policy:    policy,
		issuer:    security.NewTokenIssuer(),
		notify:    newDispatcher(notifier, log),
		baseURL:   strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		ttl:       defaultProvisioningTTL,
		validator: newInputValidator(),
		logger:    log,
		now:       time.Now,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *ProvisioningService) WithClock(clock func() time.Time) *ProvisioningService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithTTL overrides the setup token lifetime.
func (s *ProvisioningService) WithTTL(ttl time.Duration) *ProvisioningService {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// WithMetrics attaches a metrics recorder.
func (s *ProvisioningService) WithMetrics(metrics ProvisioningMetrics) *ProvisioningService {
	s.metrics = metrics
	s.notify.metrics = metrics
	return s
}

// CreateAccount stores a staff account without a credential and sends it a setup link.
// The account is kept even when the link cannot be issued; ResendProvisioningLink
// recovers from that.
func (s *ProvisioningService) CreateAccount(ctx context.Context, in CreateAccountInput) (*ProvisioningResult, error) {
	clean := CreateAccountInput{
		Username:    strings.TrimSpace(in.Username),
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		FirstName:   s.validator.PlainText(in.FirstName),
		LastName:    s.validator.PlainText(in.LastName),
		DisplayName: s.validator.PlainText(in.DisplayName),
		IsAdmin:     in.IsAdmin,
	}
	if err := s.validator.Struct(clean); err != nil {
		return nil, err
	}

	account := domain.Account{
		ID:          uuid.NewString(),
		Username:    clean.Username,
		Email:       clean.Email,
		FirstName:   clean.FirstName,
		LastName:    clean.LastName,
		DisplayName: clean.DisplayName,
		IsAdmin:     clean.IsAdmin,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrConflict
		}
		return nil, unavailable("store account", err)
	}
	s.observe("account_created")

	log := logger.WithContext(ctx, s.logger).With(zap.String("account_id", account.ID))
	log.Info("staff account created", zap.Bool("admin", account.IsAdmin))

	result, err := s.issueLink(ctx, account)
	if err != nil {
		log.Error("issue provisioning link failed", zap.Error(err))
		return nil, err
	}
	return result, nil
}

// ResendProvisioningLink revokes any outstanding setup token and issues a new one.
func (s *ProvisioningService) ResendProvisioningLink(ctx context.Context, accountID string) (*ProvisioningResult, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.CredentialSet {
		return nil, ErrAlreadyActivated
	}

	result, err := s.issueLink(ctx, *account)
	if err != nil {
		return nil, err
	}
	s.observe("link_resent")
	logger.WithContext(ctx, s.logger).Info("provisioning link reissued", zap.String("account_id", account.ID))
	return result, nil
}

// ConsumeToken redeems a setup token and sets the account's first credential.
// Unknown, spent, revoked and expired tokens are reported identically.
func (s *ProvisioningService) ConsumeToken(ctx context.Context, rawToken, newCredential string) (string, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		s.observe("token_rejected")
		return "", ErrInvalidToken
	}
	hash := s.issuer.Hash(rawToken)
	now := s.now().UTC()

	token, err := s.tokens.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.observe("token_rejected")
			return "", ErrInvalidToken
		}
		return "", unavailable("lookup provisioning token", err)
	}
	if !token.IsUsable(now) {
		s.observe("token_rejected")
		return "", ErrInvalidToken
	}

	account, err := s.accounts.GetByID(ctx, token.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.observe("token_rejected")
			return "", ErrInvalidToken
		}
		return "", unavailable("load account", err)
	}
	if account.CredentialSet {
		s.observe("token_rejected")
		return "", ErrInvalidToken
	}

	if err := s.policy.Validate(newCredential, account.Username, account.Email, account.FirstName, account.LastName); err != nil {
		return "", newValidationError("password", err.Error())
	}

	credentialHash, err := s.hasher.Hash(newCredential)
	if err != nil {
		return "", fmt.Errorf("hash credential: %w", err)
	}

	accountID, err := s.tokens.Redeem(ctx, hash, credentialHash, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.observe("token_rejected")
			return "", ErrInvalidToken
		}
		return "", unavailable("redeem provisioning token", err)
	}
	s.observe("account_activated")

	logger.WithContext(ctx, s.logger).Info("staff account activated", zap.String("account_id", accountID))
	return accountID, nil
}

// Get returns an account together with its provisioning state.
func (s *ProvisioningService) Get(ctx context.Context, accountID string) (*AccountView, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var latest *domain.ProvisioningToken
	if !account.CredentialSet {
		latest, err = s.tokens.Latest(ctx, account.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, unavailable("load provisioning token", err)
		}
	}

	view := &AccountView{
		Account: sanitizedAccount(*account),
		State:   domain.DeriveProvisioningState(*account, latest, s.now().UTC()),
	}
	if latest != nil {
		expires := latest.ExpiresAt
		view.TokenExpiresAt = &expires
	}
	return view, nil
}

func (s *ProvisioningService) issueLink(ctx context.Context, account domain.Account) (*ProvisioningResult, error) {
	raw, hash, err := s.issuer.Issue()
	if err != nil {
		return nil, fmt.Errorf("generate provisioning token: %w", err)
	}

	issuedAt := s.now().UTC()
	token := domain.ProvisioningToken{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: hash,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.ttl),
	}
	if err := s.storeToken(ctx, token); err != nil {
		return nil, err
	}
	s.observe("link_issued")

	report := s.notify.dispatch(ctx, domain.Notification{
		Key:      "account:" + account.ID + ":welcome:" + token.ID,
		Template: domain.TemplateAccountWelcome,
		To:       account.Email,
		Data: map[string]string{
			"name":       account.Name(),
			"username":   account.Username,
			"setup_link": s.setupLink(raw),
			"expires_at": token.ExpiresAt.Format(expiryLayout),
		},
		CreatedAt: issuedAt,
	})

	return &ProvisioningResult{
		Account:      sanitizedAccount(account),
		State:        domain.DeriveProvisioningState(account, &token, issuedAt),
		ExpiresAt:    token.ExpiresAt,
		Notification: report,
	}, nil
}

// storeToken persists the token once the account is confirmed still pending. A
// uniqueness conflict means a concurrent issue won the outstanding slot; the
// revoke-and-insert is retried once against the committed state.
func (s *ProvisioningService) storeToken(ctx context.Context, token domain.ProvisioningToken) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.tokens.Issue(ctx, token)
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrAccountNotFound
	case errors.Is(err, repository.ErrAccountActive):
		return ErrAlreadyActivated
	case errors.Is(err, repository.ErrConflict):
		return ErrConcurrentUpdate
	default:
		return unavailable("store provisioning token", err)
	}
}

func (s *ProvisioningService) setupLink(raw string) string {
	return s.baseURL + setupPath + "?token=" + url.QueryEscape(raw)
}

func (s *ProvisioningService) loadAccount(ctx context.Context, id string) (*domain.Account, error) {
	if !validID(id) {
		return nil, ErrAccountNotFound
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, unavailable("load account", err)
	}
	return account, nil
}

func (s *ProvisioningService) observe(event string) {
	if s.metrics != nil {
		s.metrics.ObserveProvisioning(event)
	}
}

func sanitizedAccount(account domain.Account) domain.Account {
	account.CredentialHash = ""
	return account
}

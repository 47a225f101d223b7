package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/infra/logger"
	"github.com/ritaorion/district5b-portal/internal/infra/security"
	"github.com/ritaorion/district5b-portal/internal/repository"
)

// AccessTokens signs and verifies staff access tokens.
type AccessTokens interface {
	Issue(subject, username string, admin bool) (string, time.Time, error)
	Parse(token string) (*security.AccessClaims, error)
}

// Claims identify the staff member behind a verified access token.
type Claims struct {
	AccountID string
	Username  string
	Admin     bool
	ExpiresAt time.Time
}

// LoginResult is returned after a successful staff login.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Account     domain.Account
}

// AuthService authenticates staff accounts.
type AuthService struct {
	accounts port.AccountRepository
	hasher   port.CredentialHasher
	tokens   AccessTokens
	logger   *zap.Logger

	decoyOnce sync.Once
	decoyHash string
}

// decoyCredential is hashed once and verified for unknown identifiers so both
// paths pay for one hash verification.
const decoyCredential = "district5b-portal-decoy-credential"

// NewAuthService constructs an AuthService instance.
func NewAuthService(accounts port.AccountRepository, hasher port.CredentialHasher, tokens AccessTokens, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{accounts: accounts, hasher: hasher, tokens: tokens, logger: log}
}

// Login validates credentials and issues an access token. Accounts that have not
// redeemed their setup link are refused.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	account, err := s.accounts.GetByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.verifyDecoy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, unavailable("lookup account", err)
	}

	log := logger.WithContext(ctx, s.logger).With(zap.String("account_id", account.ID))
	if !account.CanAuthenticate() {
		log.Info("login refused for account pending setup")
		return nil, ErrCredentialNotSet
	}

	ok, err := s.hasher.Verify(password, account.CredentialHash)
	if err != nil {
		log.Warn("verify credential failed", zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(account.ID, account.Username, account.IsAdmin)
	if err != nil {
		return nil, err
	}
	log.Info("staff login")

	return &LoginResult{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		Account:     sanitizedAccount(*account),
	}, nil
}

func (s *AuthService) verifyDecoy(password string) {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash(decoyCredential)
		if err != nil {
			s.logger.Warn("hash decoy credential failed", zap.Error(err))
			return
		}
		s.decoyHash = hash
	})
	if s.decoyHash != "" {
		_, _ = s.hasher.Verify(password, s.decoyHash)
	}
}

// ParseAccessToken verifies an access token issued by Login.
func (s *AuthService) ParseAccessToken(_ context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidCredentials
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	out := &Claims{
		AccountID: claims.Subject,
		Username:  claims.Username,
		Admin:     claims.Admin,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

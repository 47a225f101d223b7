// Package memory provides in-process repositories guarded by a single mutex.
// They back local development and the service tests; every compound operation
// runs under the lock so it is atomic with respect to concurrent callers.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/repository"
)

// Store holds all records in memory.
type Store struct {
	mu          sync.Mutex
	submissions map[string]domain.Submission
	accounts    map[string]domain.Account
	tokens      map[string]domain.ProvisioningToken
	articles    map[string]domain.ArticleDraft
	now         func() time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		submissions: make(map[string]domain.Submission),
		accounts:    make(map[string]domain.Account),
		tokens:      make(map[string]domain.ProvisioningToken),
		articles:    make(map[string]domain.ArticleDraft),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submissions returns the submission repository view of the store.
func (s *Store) Submissions() *SubmissionRepository { return &SubmissionRepository{s: s} }

// Accounts returns the account repository view of the store.
func (s *Store) Accounts() *AccountRepository { return &AccountRepository{s: s} }

// Tokens returns the provisioning token repository view of the store.
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s: s} }

// Articles returns the article publisher view of the store.
func (s *Store) Articles() *ArticleRepository { return &ArticleRepository{s: s} }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// SubmissionRepository implements port.SubmissionRepository.
type SubmissionRepository struct{ s *Store }

func (r *SubmissionRepository) Create(_ context.Context, submission domain.Submission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.submissions[submission.ID]; exists {
		return repository.ErrConflict
	}
	r.s.submissions[submission.ID] = cloneSubmission(submission)
	return nil
}

func (r *SubmissionRepository) GetByID(_ context.Context, id string) (*domain.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.submissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneSubmission(sub)
	return &out, nil
}

func (r *SubmissionRepository) List(_ context.Context, filter port.SubmissionFilter) ([]domain.Submission, error) {
	r.s.mu.Lock()
	out := make([]domain.Submission, 0, len(r.s.submissions))
	for _, sub := range r.s.submissions {
		if filter.Status != nil && sub.Status != *filter.Status {
			continue
		}
		out = append(out, cloneSubmission(sub))
	}
	r.s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Submission{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *SubmissionRepository) TransitionStatus(_ context.Context, id string, from, to domain.SubmissionStatus, at time.Time) (*domain.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.submissions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if sub.Status != from || !from.CanTransition(to) {
		return nil, repository.ErrStateMismatch
	}
	sub.Status = to
	decided := at
	sub.DecidedAt = &decided
	r.s.submissions[id] = sub
	out := cloneSubmission(sub)
	return &out, nil
}

func (r *SubmissionRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.submissions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.submissions, id)
	return nil
}

// AccountRepository implements port.AccountRepository.
type AccountRepository struct{ s *Store }

func (r *AccountRepository) Create(_ context.Context, account domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.accounts {
		if strings.EqualFold(existing.Username, account.Username) || strings.EqualFold(existing.Email, account.Email) {
			return repository.ErrConflict
		}
	}
	r.s.accounts[account.ID] = account
	return nil
}

func (r *AccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	account, ok := r.s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAccount(account), nil
}

func (r *AccountRepository) GetByLogin(_ context.Context, identifier string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, account := range r.s.accounts {
		if strings.EqualFold(account.Username, identifier) || strings.EqualFold(account.Email, identifier) {
			return cloneAccount(account), nil
		}
	}
	return nil, repository.ErrNotFound
}

// TokenRepository implements port.ProvisioningTokenRepository.
type TokenRepository struct{ s *Store }

func (r *TokenRepository) Issue(_ context.Context, token domain.ProvisioningToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	account, ok := r.s.accounts[token.AccountID]
	if !ok {
		return repository.ErrNotFound
	}
	if account.CredentialSet {
		return repository.ErrAccountActive
	}
	for id, existing := range r.s.tokens {
		if existing.AccountID != token.AccountID || existing.ConsumedAt != nil {
			continue
		}
		if existing.Revoke(token.IssuedAt) {
			r.s.tokens[id] = existing
		}
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	r.s.tokens[token.ID] = token
	return nil
}

func (r *TokenRepository) GetByHash(_ context.Context, hash string) (*domain.ProvisioningToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, token := range r.s.tokens {
		if token.TokenHash == hash {
			out := token
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *TokenRepository) Latest(_ context.Context, accountID string) (*domain.ProvisioningToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *domain.ProvisioningToken
	for _, token := range r.s.tokens {
		if token.AccountID != accountID {
			continue
		}
		if latest == nil || token.IssuedAt.After(latest.IssuedAt) {
			candidate := token
			latest = &candidate
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return latest, nil
}

func (r *TokenRepository) Redeem(_ context.Context, hash, credentialHash string, at time.Time) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, token := range r.s.tokens {
		if token.TokenHash != hash {
			continue
		}
		if !token.IsUsable(at) {
			return "", repository.ErrNotFound
		}
		account, ok := r.s.accounts[token.AccountID]
		if !ok || account.CredentialSet {
			return "", repository.ErrNotFound
		}
		token.Consume(at)
		r.s.tokens[id] = token

		activated := at
		account.CredentialSet = true
		account.CredentialHash = credentialHash
		account.ActivatedAt = &activated
		r.s.accounts[account.ID] = account
		return account.ID, nil
	}
	return "", repository.ErrNotFound
}

// ArticleRepository implements port.ArticlePublisher.
type ArticleRepository struct{ s *Store }

func (r *ArticleRepository) PublishDraft(_ context.Context, seed domain.ArticleSeed) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	draft := domain.ArticleDraft{
		ID:           uuid.NewString(),
		Title:        seed.Title,
		Body:         seed.Body,
		Author:       seed.Author,
		SubmissionID: seed.SubmissionID,
		CreatedAt:    r.s.now(),
	}
	r.s.articles[draft.ID] = draft
	return draft.ID, nil
}

// Drafts returns every draft created from the given submission.
func (r *ArticleRepository) Drafts(submissionID string) []domain.ArticleDraft {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ArticleDraft
	for _, draft := range r.s.articles {
		if draft.SubmissionID == submissionID {
			out = append(out, draft)
		}
	}
	return out
}

func cloneSubmission(sub domain.Submission) domain.Submission {
	out := sub
	if sub.Author != nil {
		author := *sub.Author
		out.Author = &author
	}
	if sub.DecidedAt != nil {
		decided := *sub.DecidedAt
		out.DecidedAt = &decided
	}
	return out
}

func cloneAccount(account domain.Account) *domain.Account {
	out := account
	if account.ActivatedAt != nil {
		activated := *account.ActivatedAt
		out.ActivatedAt = &activated
	}
	return &out
}

var (
	_ port.SubmissionRepository        = (*SubmissionRepository)(nil)
	_ port.AccountRepository           = (*AccountRepository)(nil)
	_ port.ProvisioningTokenRepository = (*TokenRepository)(nil)
	_ port.ArticlePublisher            = (*ArticleRepository)(nil)
)

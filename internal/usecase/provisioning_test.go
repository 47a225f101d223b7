package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	uuid "github.com/google/uuid"

	"github.com/ritaorion/district5b-portal/internal/core/domain"
	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/repository"
	"github.com/ritaorion/district5b-portal/internal/repository/memory"
)

const strongCredential = "NewPass1!"

type provisioningFixture struct {
	store    *memory.Store
	notifier *recordingNotifier
	metrics  *recordingMetrics
	clock    *testClock
	service  *ProvisioningService
}

func newProvisioningFixture(t *testing.T) *provisioningFixture {
	t.Helper()
	store := memory.NewStore()
	notifier := &recordingNotifier{}
	metrics := newRecordingMetrics()
	clock := newTestClock()
	service := NewProvisioningService(
		store.Accounts(),
		store.Tokens(),
		plainHasher{},
		testCredentialPolicy(),
		notifier,
		"https://portal.district5b.org/",
		nil,
	).WithClock(clock.Now).WithMetrics(metrics)
	return &provisioningFixture{store: store, notifier: notifier, metrics: metrics, clock: clock, service: service}
}

func (f *provisioningFixture) create(t *testing.T, username, email string) (*ProvisioningResult, string) {
	t.Helper()
	result, err := f.service.CreateAccount(context.Background(), CreateAccountInput{Username: username, Email: email})
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	sent := f.notifier.Sent()
	if len(sent) == 0 {
		t.Fatal("expected a welcome notification")
	}
	return result, tokenFromLink(t, sent[len(sent)-1])
}

func TestJdoeProvisioningScenario(t *testing.T) {
	f := newProvisioningFixture(t)
	ctx := context.Background()

	result, t1 := f.create(t, "jdoe", "j@x.com")
	if result.Account.CredentialSet {
		t.Fatal("new account must not have a credential")
	}
	if result.State != domain.ProvisioningPending {
		t.Fatalf("expected pending state, got %s", result.State)
	}
	if !result.ExpiresAt.Equal(f.clock.Now().Add(24 * time.Hour)) {
		t.Fatalf("expected 24h expiry, got %s", result.ExpiresAt)
	}

	sent := f.notifier.Sent()
	if len(sent) != 1 || sent[0].Template != domain.TemplateAccountWelcome || sent[0].To != "j@x.com" {
		t.Fatalf("unexpected notifications %+v", sent)
	}
	if !strings.HasPrefix(sent[0].Data["setup_link"], "https://portal.district5b.org/setup?token=") {
		t.Fatalf("unexpected setup link %q", sent[0].Data["setup_link"])
	}

	accountID, err := f.service.ConsumeToken(ctx, t1, strongCredential)
	if err != nil {
		t.Fatalf("ConsumeToken returned error: %v", err)
	}
	if accountID != result.Account.ID {
		t.Fatalf("expected account %s, got %s", result.Account.ID, accountID)
	}

	view, err := f.service.Get(ctx, accountID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if view.State != domain.ProvisioningActive || !view.Account.CredentialSet {
		t.Fatalf("expected active account, got %+v", view)
	}
	if view.Account.CredentialHash != "" {
		t.Fatal("credential hash must not leave the service")
	}

	if _, err := f.service.ConsumeToken(ctx, t1, "Other!"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken reusing token, got %v", err)
	}
	if f.metrics.provisioning["account_activated"] != 1 {
		t.Fatalf("unexpected metrics %+v", f.metrics.provisioning)
	}
}

func TestCreateAccountRejectsDuplicates(t *testing.T) {
	f := newProvisioningFixture(t)
	f.create(t, "jdoe", "j@x.com")

	cases := []CreateAccountInput{
		{Username: "JDoe", Email: "other@x.com"},
		{Username: "other", Email: "J@X.com"},
	}
	for _, in := range cases {
		if _, err := f.service.CreateAccount(context.Background(), in); !errors.Is(err, ErrConflict) {
			t.Fatalf("CreateAccount(%+v): expected ErrConflict, got %v", in, err)
		}
	}
	if len(f.notifier.Sent()) != 1 {
		t.Fatalf("conflicts must not notify, sent %d", len(f.notifier.Sent()))
	}
}

func TestCreateAccountValidatesInput(t *testing.T) {
	f := newProvisioningFixture(t)

	_, err := f.service.CreateAccount(context.Background(), CreateAccountInput{Username: "a b", Email: "nope"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["username"]; !ok {
		t.Fatalf("expected username violation, got %+v", verr.Fields)
	}
	if _, ok := verr.Fields["email"]; !ok {
		t.Fatalf("expected email violation, got %+v", verr.Fields)
	}
}

func TestConsumeTokenRejectsExpiredToken(t *testing.T) {
	f := newProvisioningFixture(t)
	result, token := f.create(t, "late", "late@example.com")

	f.clock.Advance(24 * time.Hour)

	if _, err := f.service.ConsumeToken(context.Background(), token, strongCredential); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
	view, err := f.service.Get(context.Background(), result.Account.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if view.State != domain.ProvisioningExpired {
		t.Fatalf("expected expired state, got %s", view.State)
	}
}

func TestConsumeTokenJustBeforeExpiry(t *testing.T) {
	f := newProvisioningFixture(t)
	_, token := f.create(t, "prompt", "prompt@example.com")

	f.clock.Advance(24*time.Hour - time.Second)

	if _, err := f.service.ConsumeToken(context.Background(), token, strongCredential); err != nil {
		t.Fatalf("expected token to be usable before expiry, got %v", err)
	}
}

func TestConsumeTokenUnknownToken(t *testing.T) {
	f := newProvisioningFixture(t)

	for _, raw := range []string{"", "   ", "definitely-not-issued"} {
		if _, err := f.service.ConsumeToken(context.Background(), raw, strongCredential); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("ConsumeToken(%q): expected ErrInvalidToken, got %v", raw, err)
		}
	}
}

func TestConsumeTokenEnforcesCredentialPolicy(t *testing.T) {
	f := newProvisioningFixture(t)
	result, token := f.create(t, "weak", "weak@example.com")

	_, err := f.service.ConsumeToken(context.Background(), token, "short")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields["password"] == "" {
		t.Fatalf("expected password violation, got %+v", verr.Fields)
	}

	view, _ := f.service.Get(context.Background(), result.Account.ID)
	if view.State != domain.ProvisioningPending {
		t.Fatalf("policy failure must leave the token usable, state %s", view.State)
	}
	if _, err := f.service.ConsumeToken(context.Background(), token, strongCredential); err != nil {
		t.Fatalf("expected retry with strong credential to succeed, got %v", err)
	}
}

func TestResendInvalidatesPreviousToken(t *testing.T) {
	f := newProvisioningFixture(t)
	ctx := context.Background()
	created, oldToken := f.create(t, "resend", "resend@example.com")

	f.clock.Advance(time.Hour)
	resent, err := f.service.ResendProvisioningLink(ctx, created.Account.ID)
	if err != nil {
		t.Fatalf("ResendProvisioningLink returned error: %v", err)
	}
	if !resent.ExpiresAt.Equal(f.clock.Now().Add(24 * time.Hour)) {
		t.Fatalf("expected fresh expiry, got %s", resent.ExpiresAt)
	}

	sent := f.notifier.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected two welcome notifications, got %d", len(sent))
	}
	if sent[0].Key == sent[1].Key {
		t.Fatal("resent notification must carry a new key")
	}
	newToken := tokenFromLink(t, sent[1])

	if _, err := f.service.ConsumeToken(ctx, oldToken, strongCredential); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for superseded token, got %v", err)
	}
	if _, err := f.service.ConsumeToken(ctx, newToken, strongCredential); err != nil {
		t.Fatalf("expected new token to succeed, got %v", err)
	}

	if _, err := f.service.ResendProvisioningLink(ctx, created.Account.ID); !errors.Is(err, ErrAlreadyActivated) {
		t.Fatalf("expected ErrAlreadyActivated, got %v", err)
	}
}

func TestResendUnknownAccount(t *testing.T) {
	f := newProvisioningFixture(t)

	for _, id := range []string{uuid.NewString(), "42"} {
		if _, err := f.service.ResendProvisioningLink(context.Background(), id); !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("ResendProvisioningLink(%q): expected ErrAccountNotFound, got %v", id, err)
		}
	}
}

func TestConcurrentRedemptionHasSingleWinner(t *testing.T) {
	f := newProvisioningFixture(t)
	_, token := f.create(t, "racer", "racer@example.com")

	const workers = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losers  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.ConsumeToken(context.Background(), token, strongCredential)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrInvalidToken):
				losers++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if winners != 1 || losers != workers-1 {
		t.Fatalf("expected one winner, got %d winners and %d losers", winners, losers)
	}
}

func TestCreateAccountDeliveryFailureKeepsAccount(t *testing.T) {
	f := newProvisioningFixture(t)
	f.notifier.Fail(errors.New("smtp: connection refused"))

	result, err := f.service.CreateAccount(context.Background(), CreateAccountInput{Username: "offline", Email: "offline@example.com"})
	if err != nil {
		t.Fatalf("CreateAccount returned error: %v", err)
	}
	if result.Notification.Delivered {
		t.Fatal("expected undelivered welcome notification")
	}
	if result.Notification.Reason != "delivery failed" {
		t.Fatalf("unexpected reason %q", result.Notification.Reason)
	}

	view, err := f.service.Get(context.Background(), result.Account.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if view.State != domain.ProvisioningPending {
		t.Fatalf("expected pending account, got %s", view.State)
	}

	f.notifier.Fail(nil)
	if _, err := f.service.ResendProvisioningLink(context.Background(), result.Account.ID); err != nil {
		t.Fatalf("ResendProvisioningLink returned error: %v", err)
	}
	if len(f.notifier.Sent()) != 1 {
		t.Fatalf("expected resent link to be delivered, got %d", len(f.notifier.Sent()))
	}
}

// accountsWithHook runs hook once, after the first GetByID read returns.
type accountsWithHook struct {
	port.AccountRepository
	armed atomic.Bool
	hook  func()
}

func (a *accountsWithHook) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	account, err := a.AccountRepository.GetByID(ctx, id)
	if a.armed.CompareAndSwap(true, false) {
		a.hook()
	}
	return account, err
}

func TestResendLosesToConcurrentActivation(t *testing.T) {
	f := newProvisioningFixture(t)
	ctx := context.Background()
	created, token := f.create(t, "swift", "swift@example.com")

	accounts := &accountsWithHook{AccountRepository: f.store.Accounts()}
	service := NewProvisioningService(accounts, f.store.Tokens(), plainHasher{}, testCredentialPolicy(), f.notifier, "https://portal.district5b.org", nil).
		WithClock(f.clock.Now)
	accounts.hook = func() {
		if _, err := service.ConsumeToken(ctx, token, strongCredential); err != nil {
			t.Errorf("ConsumeToken returned error: %v", err)
		}
	}
	accounts.armed.Store(true)

	if _, err := service.ResendProvisioningLink(ctx, created.Account.ID); !errors.Is(err, ErrAlreadyActivated) {
		t.Fatalf("expected ErrAlreadyActivated, got %v", err)
	}
	if sent := len(f.notifier.Sent()); sent != 1 {
		t.Fatalf("expected only the original welcome notification, got %d", sent)
	}

	view, err := service.Get(ctx, created.Account.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if view.State != domain.ProvisioningActive {
		t.Fatalf("expected active account, got %s", view.State)
	}
}

// conflictingTokens fails the first n Issue calls with a uniqueness conflict.
type conflictingTokens struct {
	port.ProvisioningTokenRepository
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (c *conflictingTokens) Issue(ctx context.Context, token domain.ProvisioningToken) error {
	c.mu.Lock()
	c.calls++
	fail := c.calls <= c.conflicts
	c.mu.Unlock()
	if fail {
		return repository.ErrConflict
	}
	return c.ProvisioningTokenRepository.Issue(ctx, token)
}

func TestResendRetriesOutstandingTokenConflict(t *testing.T) {
	cases := []struct {
		name      string
		conflicts int
		wantErr   error
		wantCalls int
	}{
		{name: "single conflict is retried", conflicts: 1, wantCalls: 2},
		{name: "persistent conflict", conflicts: 5, wantErr: ErrConcurrentUpdate, wantCalls: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newProvisioningFixture(t)
			created, _ := f.create(t, "double", "double@example.com")

			tokens := &conflictingTokens{ProvisioningTokenRepository: f.store.Tokens(), conflicts: tc.conflicts}
			service := NewProvisioningService(f.store.Accounts(), tokens, plainHasher{}, testCredentialPolicy(), f.notifier, "https://portal.district5b.org", nil).
				WithClock(f.clock.Now)

			_, err := service.ResendProvisioningLink(context.Background(), created.Account.ID)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("ResendProvisioningLink returned error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if errors.Is(err, ErrUnavailable) {
				t.Fatal("a token conflict must not surface as unavailable")
			}
			if tokens.calls != tc.wantCalls {
				t.Fatalf("expected %d Issue calls, got %d", tc.wantCalls, tokens.calls)
			}
		})
	}
}

package security

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testArgon2Config() Argon2Config {
	return Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestArgon2HasherRoundTrip(t *testing.T) {
	hasher, err := NewArgon2Hasher(testArgon2Config())
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}

	encoded, err := hasher.Hash("NewPass1!")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.HasPrefix(encoded, "argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %s", encoded)
	}

	ok, err := hasher.Verify("NewPass1!", encoded)
	if err != nil || !ok {
		t.Fatalf("expected credential to verify, ok=%v err=%v", ok, err)
	}
	ok, err = hasher.Verify("Other!", encoded)
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
}

func TestArgon2HasherRejectsMalformedHash(t *testing.T) {
	hasher, err := NewArgon2Hasher(testArgon2Config())
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	if _, err := hasher.Verify("x", "salt:hash"); !errors.Is(err, errInvalidHashFormat) {
		t.Fatalf("expected invalid format error, got %v", err)
	}
}

func TestNewArgon2HasherValidatesConfig(t *testing.T) {
	cfg := testArgon2Config()
	cfg.Memory = 1024
	if _, err := NewArgon2Hasher(cfg); !errors.Is(err, errInvalidConfig) {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer()

	raw, hash, err := issuer.Issue()
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if len(raw) != 43 {
		t.Fatalf("expected 43 char base64url token, got %d", len(raw))
	}
	if hash != HashToken(raw) || len(hash) != 64 {
		t.Fatalf("expected sha256 hex hash of raw token")
	}

	other, _, err := issuer.Issue()
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if other == raw {
		t.Fatalf("expected distinct tokens")
	}
}

func TestCredentialPolicy(t *testing.T) {
	policy := NewCredentialPolicy(CredentialPolicyConfig{MinLength: 8, MinClasses: 3})

	if err := policy.Validate("NewPass1!", "jdoe", "jdoe@example.org"); err != nil {
		t.Fatalf("expected credential to pass, got %v", err)
	}

	cases := map[string]string{
		"Other!":        "min_length",
		"lowercaseonly": "character_classes",
		"Jdoe2026!!":    "contains_account_details",
	}
	for credential, code := range cases {
		err := policy.Validate(credential, "jdoe", "jdoe@example.org")
		var violation *CredentialViolation
		if !errors.As(err, &violation) {
			t.Fatalf("expected violation for %q, got %v", credential, err)
		}
		if violation.Code != code {
			t.Fatalf("expected %s for %q, got %s", code, credential, violation.Code)
		}
	}
}

func TestCredentialPolicyStrength(t *testing.T) {
	policy := NewCredentialPolicy(CredentialPolicyConfig{MinLength: 8, MinClasses: 3, MinEntropyScore: 3})

	if err := policy.Validate("Password123"); err == nil {
		t.Fatalf("expected weak password to be rejected")
	}
	if err := policy.Validate("C0mplex!Passphrase#2025"); err != nil {
		t.Fatalf("expected strong password to pass, got %v", err)
	}
}

func TestAccessTokenIssuer(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	issuer, err := NewAccessTokenIssuer("0123456789abcdef0123456789abcdef", "district5b-portal", time.Hour)
	if err != nil {
		t.Fatalf("NewAccessTokenIssuer returned error: %v", err)
	}
	issuer.WithClock(func() time.Time { return now })

	token, expiresAt, err := issuer.Issue("acc-1", "jdoe", true)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.Subject != "acc-1" || claims.Username != "jdoe" || !claims.Admin {
		t.Fatalf("unexpected claims %+v", claims)
	}

	issuer.WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}

	other, _ := NewAccessTokenIssuer("another-secret-another-secret-xx", "district5b-portal", time.Hour)
	other.WithClock(func() time.Time { return now })
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected foreign signature to be rejected, got %v", err)
	}
}

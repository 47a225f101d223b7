package security

import (
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/ritaorion/district5b-portal/internal/core/port"
)

// CredentialViolation represents a single credential policy violation.
type CredentialViolation struct {
	Code    string
	Message string
}

// Error implements error for CredentialViolation.
func (e *CredentialViolation) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// CredentialRule validates a credential according to a specific policy rule.
type CredentialRule interface {
	Validate(credential string) error
}

// CredentialRuleFunc adapts a function to be used as a CredentialRule.
type CredentialRuleFunc func(credential string) error

// Validate executes the underlying rule function.
func (f CredentialRuleFunc) Validate(credential string) error {
	return f(credential)
}

// MinLengthRule ensures the credential has at least min characters.
func MinLengthRule(min int) CredentialRule {
	return CredentialRuleFunc(func(credential string) error {
		if len([]rune(credential)) < min {
			return &CredentialViolation{
				Code:    "min_length",
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		return nil
	})
}

// RequireCharacterClassesRule ensures the credential mixes at least min of
// upper, lower, digit and symbol characters.
func RequireCharacterClassesRule(min int) CredentialRule {
	return CredentialRuleFunc(func(credential string) error {
		if min <= 0 {
			return nil
		}

		var upper, lower, digit, symbol bool
		for _, r := range credential {
			switch {
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsLower(r):
				lower = true
			case unicode.IsDigit(r):
				digit = true
			case unicode.IsSymbol(r) || unicode.IsPunct(r):
				symbol = true
			}
		}

		classes := 0
		for _, present := range []bool{upper, lower, digit, symbol} {
			if present {
				classes++
			}
		}
		if classes >= min {
			return nil
		}

		return &CredentialViolation{
			Code:    "character_classes",
			Message: fmt.Sprintf("password must include at least %d character types", min),
		}
	})
}

// NotDerivedFromRule rejects credentials containing any of the account attributes.
func NotDerivedFromRule(userInputs ...string) CredentialRule {
	return CredentialRuleFunc(func(credential string) error {
		lowered := strings.ToLower(credential)
		for _, input := range userInputs {
			input = strings.ToLower(strings.TrimSpace(input))
			if len(input) < 3 {
				continue
			}
			if strings.Contains(lowered, input) {
				return &CredentialViolation{
					Code:    "contains_account_details",
					Message: "password must not contain your username or email",
				}
			}
		}
		return nil
	})
}

// StrengthRule enforces a minimum zxcvbn score to reject guessable credentials.
func StrengthRule(minScore int, userInputs ...string) CredentialRule {
	return CredentialRuleFunc(func(credential string) error {
		if minScore <= 0 {
			return nil
		}
		if minScore > 4 {
			minScore = 4
		}

		result := zxcvbn.PasswordStrength(credential, userInputs)
		if result.Score >= minScore {
			return nil
		}

		return &CredentialViolation{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	})
}

// CredentialPolicyConfig tunes the built-in rules.
type CredentialPolicyConfig struct {
	MinLength       int
	MinClasses      int
	MinEntropyScore int
}

// DefaultCredentialPolicyConfig mirrors the configuration defaults.
func DefaultCredentialPolicyConfig() CredentialPolicyConfig {
	return CredentialPolicyConfig{MinLength: 8, MinClasses: 3, MinEntropyScore: 1}
}

// CredentialPolicy applies length, character class, account-derivation and
// zxcvbn strength rules, returning the first violation.
type CredentialPolicy struct {
	cfg CredentialPolicyConfig
}

// NewCredentialPolicy constructs a policy with the supplied thresholds.
func NewCredentialPolicy(cfg CredentialPolicyConfig) *CredentialPolicy {
	return &CredentialPolicy{cfg: cfg}
}

// Validate checks credential against the policy. userInputs are account
// attributes such as username and email.
func (p *CredentialPolicy) Validate(credential string, userInputs ...string) error {
	rules := []CredentialRule{
		MinLengthRule(p.cfg.MinLength),
		RequireCharacterClassesRule(p.cfg.MinClasses),
		NotDerivedFromRule(userInputs...),
		StrengthRule(p.cfg.MinEntropyScore, userInputs...),
	}
	for _, rule := range rules {
		if err := rule.Validate(credential); err != nil {
			return err
		}
	}
	return nil
}

var _ port.CredentialPolicy = (*CredentialPolicy)(nil)

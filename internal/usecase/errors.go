package usecase

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is the parent of every "entity does not exist" error.
	ErrNotFound = errors.New("not found")
	// ErrSubmissionNotFound indicates the submission id is unknown.
	ErrSubmissionNotFound = fmt.Errorf("submission %w", ErrNotFound)
	// ErrAccountNotFound indicates the account id is unknown.
	ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)
	// ErrInvalidState indicates the submission was already decided.
	ErrInvalidState = errors.New("submission already processed")
	// ErrConflict indicates a username or email is already taken.
	ErrConflict = errors.New("username or email already in use")
	// ErrAlreadyActivated indicates the account has already set its credential.
	ErrAlreadyActivated = errors.New("account already activated")
	// ErrConcurrentUpdate indicates another request changed the account first; the caller may retry.
	ErrConcurrentUpdate = errors.New("account changed concurrently")
	// ErrInvalidToken covers absent, consumed, revoked and expired setup tokens alike.
	ErrInvalidToken = errors.New("provisioning token invalid")
	// ErrInvalidCredentials indicates an unknown login or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCredentialNotSet indicates the account has not completed provisioning.
	ErrCredentialNotSet = errors.New("account credential not set")
	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("service unavailable")
)

// ValidationError reports per-field input problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

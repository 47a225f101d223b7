package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint rejected the write.
	ErrConflict = errors.New("repository: conflict")
	// ErrStateMismatch indicates a conditional update found the record in an unexpected state.
	ErrStateMismatch = errors.New("repository: state mismatch")
	// ErrAccountActive indicates the account already holds a credential.
	ErrAccountActive = errors.New("repository: account already active")
)

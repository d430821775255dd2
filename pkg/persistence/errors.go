package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrTokensNotFound indicates no tokens are stored for the given scope.
	ErrTokensNotFound = errors.New("tokens not found")

	// ErrInvalidScope indicates an empty scope.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrInvalidOwner indicates an empty journal owner.
	ErrInvalidOwner = errors.New("invalid journal owner")
)

// TokenError wraps token store errors with additional context.
type TokenError struct {
	Op    string // Operation being performed (e.g., "Get", "Save", "Delete")
	Scope string
	Err   error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("%s operation failed for scope %s: %v", e.Op, e.Scope, e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

func NewTokenError(op, scope string, err error) *TokenError {
	return &TokenError{Op: op, Scope: scope, Err: err}
}

// IsTokensNotFound checks if an error indicates that no tokens were stored.
func IsTokensNotFound(err error) bool {
	return errors.Is(err, ErrTokensNotFound)
}

package auth

import (
	"errors"
	"fmt"
)

// ErrorKind is the category of an authorization failure.
type ErrorKind string

const (
	KindMissingToken            ErrorKind = "missing_token"
	KindInvalidToken            ErrorKind = "invalid_token"
	KindExpiredToken            ErrorKind = "expired_token"
	KindInsufficientPermissions ErrorKind = "insufficient_permissions"
)

// AuthError is the base of every authorization failure.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newAuthError(kind ErrorKind, message string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: err}
}

var (
	ErrMissingToken            = newAuthError(KindMissingToken, "authorization token is required", nil)
	ErrInvalidToken            = newAuthError(KindInvalidToken, "invalid authorization token", nil)
	ErrExpiredToken            = newAuthError(KindExpiredToken, "authorization token has expired", nil)
	ErrInsufficientPermissions = newAuthError(KindInsufficientPermissions, "insufficient permissions", nil)
)

func invalidToken(message string, err error) *AuthError {
	return newAuthError(KindInvalidToken, message, err)
}

func expiredToken(err error) *AuthError {
	return newAuthError(KindExpiredToken, "authorization token has expired", err)
}

func insufficientPermissions(message string) *AuthError {
	return newAuthError(KindInsufficientPermissions, message, nil)
}

// KindOf returns the category of err, or "" when err is not an AuthError.
func KindOf(err error) ErrorKind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ""
}

// IsTokenError reports whether err is one of the token-related kinds
// (missing, invalid or expired), as opposed to a permission failure.
func IsTokenError(err error) bool {
	switch KindOf(err) {
	case KindMissingToken, KindInvalidToken, KindExpiredToken:
		return true
	}
	return false
}

package gatekeep

import (
	"errors"
	"fmt"
)

// ErrorKind classifies authentication failures.
type ErrorKind string

const (
	KindUserNotFound       ErrorKind = "user_not_found"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindHashVerification   ErrorKind = "hash_verification_error"
	KindInvalidProfile     ErrorKind = "invalid_profile"
	KindStore              ErrorKind = "store_error"
	KindLogout             ErrorKind = "logout_error"
	KindEmailExists        ErrorKind = "email_exists"
	KindInvalidInput       ErrorKind = "invalid_input"
)

// AuthError is the single error type returned by the verifiers and the
// session manager.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Field   string // form field the error relates to, if any
	Err     error  // underlying cause
}

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrUserNotFound       = &AuthError{Kind: KindUserNotFound, Message: "user not found"}
	ErrInvalidCredentials = &AuthError{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	ErrHashVerification   = &AuthError{Kind: KindHashVerification, Message: "password hash verification failed"}
	ErrInvalidProfile     = &AuthError{Kind: KindInvalidProfile, Message: "invalid provider profile"}
	ErrStore              = &AuthError{Kind: KindStore, Message: "credential store error"}
	ErrLogout             = &AuthError{Kind: KindLogout, Message: "logout failed"}
	ErrEmailExists        = &AuthError{Kind: KindEmailExists, Message: "email already registered"}
	ErrInvalidInput       = &AuthError{Kind: KindInvalidInput, Message: "invalid input"}
)

// NewAuthError creates a field level error.
func NewAuthError(kind ErrorKind, message, field string) *AuthError {
	return &AuthError{Kind: kind, Message: message, Field: field}
}

func wrapError(kind ErrorKind, message string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of err, or "" if err is not an *AuthError.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsDenial is true for the expected outcomes of a bad login attempt. These
// must look identical to the end user.
func IsDenial(err error) bool {
	switch KindOf(err) {
	case KindUserNotFound, KindInvalidCredentials:
		return true
	}
	return false
}

package gatekeep

import (
	"fmt"
	"regexp"
	"strings"
)

// Credentials is a single local login or signup attempt.
type Credentials struct {
	Email    string
	Password string
}

// SignupValidator validates credentials during signup
type SignupValidator func(creds *Credentials) *AuthError

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lower cases an email so that lookups and
// uniqueness do not depend on how the user typed it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MinPasswordLength returns a SignupValidator that checks the email format
// and requires passwords of at least n characters (and never empty).
func MinPasswordLength(n int) SignupValidator {
	if n < 1 {
		n = 1
	}
	return func(creds *Credentials) *AuthError {
		if creds.Email == "" {
			return NewAuthError(KindInvalidInput, "Email is required", "email")
		}
		if !emailRegex.MatchString(creds.Email) {
			return NewAuthError(KindInvalidInput, "Invalid email format", "email")
		}
		if creds.Password == "" {
			return NewAuthError(KindInvalidInput, "Password is required", "password")
		}
		if len(creds.Password) < n {
			return NewAuthError(KindInvalidInput, fmt.Sprintf("Password must be at least %d characters", n), "password")
		}
		return nil
	}
}

// DefaultSignupValidator only requires a well formed email and a non empty password.
var DefaultSignupValidator = MinPasswordLength(1)

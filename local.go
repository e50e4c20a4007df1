package gatekeep

import (
	"context"
	"errors"
)

// LocalVerifier checks email/password pairs against a CredentialStore.
type LocalVerifier struct {
	Store  CredentialStore
	Hasher PasswordHasher

	// Validates credentials during Register. Defaults to DefaultSignupValidator.
	ValidateSignup SignupValidator
}

// NewLocalVerifier creates a LocalVerifier using the given store and hasher.
func NewLocalVerifier(store CredentialStore, hasher PasswordHasher) *LocalVerifier {
	return &LocalVerifier{Store: store, Hasher: hasher}
}

// Verify authenticates email and password. On failure the error is an
// *AuthError of kind UserNotFound, InvalidCredentials, HashVerification or Store.
func (v *LocalVerifier) Verify(ctx context.Context, email, password string) (*User, error) {
	user, err := v.Store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, wrapError(KindStore, "failed to look up user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	// Federated only accounts fail here, not in the hasher, so a custom
	// hasher cannot turn the sentinel into an error or a match.
	if user.IsFederatedOnly() {
		return nil, ErrInvalidCredentials
	}

	ok, err := v.Hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, wrapError(KindHashVerification, "error comparing passwords", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Register creates a user with a local password. It does not log the user in.
func (v *LocalVerifier) Register(ctx context.Context, email, password string) (*User, error) {
	creds := &Credentials{Email: NormalizeEmail(email), Password: password}
	validate := v.ValidateSignup
	if validate == nil {
		validate = DefaultSignupValidator
	}
	if authErr := validate(creds); authErr != nil {
		return nil, authErr
	}

	existing, err := v.Store.FindByEmail(ctx, creds.Email)
	if err != nil {
		return nil, wrapError(KindStore, "failed to look up user", err)
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	hash, err := v.Hasher.Hash(creds.Password)
	if err != nil {
		return nil, wrapError(KindHashVerification, "error hashing password", err)
	}

	user, err := v.Store.CreateUser(ctx, creds.Email, hash)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, wrapError(KindEmailExists, "email already registered", err)
		}
		return nil, wrapError(KindStore, "failed to create user", err)
	}
	return user, nil
}

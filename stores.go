package gatekeep

import (
	"context"
	"errors"
	"time"
)

// FederatedOnlyPassword is stored in place of a password hash for users that
// were provisioned by an identity provider. It is not a valid bcrypt hash and
// never validates against any plaintext.
const FederatedOnlyPassword = "!federated-only"

// User is a single account, keyed by email.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsFederatedOnly returns true if the user has no local password.
func (u *User) IsFederatedOnly() bool {
	return u.PasswordHash == FederatedOnlyPassword
}

// Profile is what an identity provider hands us after its own handshake.
// Only Email is required, and it is trusted as verified.
type Profile struct {
	Provider string // "google", "github", or a SAML issuer
	Subject  string // provider specific user id
	Email    string
	Name     string
}

// ErrEmailTaken is returned by stores when CreateUser races with another
// insert for the same email.
var ErrEmailTaken = errors.New("email already registered")

// CredentialStore is the persistence boundary for users.
type CredentialStore interface {
	// FindByEmail returns the user with the given email, or (nil, nil) if there is none.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// GetUserByID returns the user with the given id, or (nil, nil) if there is none.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// CreateUser inserts a new user. Returns an error wrapping ErrEmailTaken
	// if the email already exists.
	CreateUser(ctx context.Context, email, passwordHash string) (*User, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	// Hash returns a salted one-way hash of plaintext.
	Hash(plaintext string) (string, error)

	// Verify reports whether plaintext matches hash. A mismatch is (false, nil);
	// an error means the hash itself could not be checked (eg malformed).
	Verify(plaintext, hash string) (bool, error)
}

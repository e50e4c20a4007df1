package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	gk "github.com/panyam/gatekeep"
)

// FSCredentialStore implements gk.CredentialStore with JSON files.
//
// # File Structure
//
//	{StoragePath}/
//	└── users/
//	    ├── by-email/
//	    │   └── <sha256(email)>.json   # the full user record
//	    └── by-id/
//	        └── <id>.json              # {"email": "..."}
//
// # Concurrency Model
//
// The by-email file is created with a hard link from a fully written temp
// file, which fails if the file already exists. That makes CreateUser
// exclusive per email even across processes sharing the directory.
type FSCredentialStore struct {
	StoragePath string
}

type fsUserRef struct {
	Email string `json:"email"`
}

func NewFSCredentialStore(storagePath string) *FSCredentialStore {
	return &FSCredentialStore{StoragePath: storagePath}
}

func (s *FSCredentialStore) emailPath(email string) string {
	sum := sha256.Sum256([]byte(email))
	return filepath.Join(s.StoragePath, "users", "by-email", hex.EncodeToString(sum[:])+".json")
}

func (s *FSCredentialStore) idPath(id string) string {
	// ids are ours (uuids) but never trust them as path components
	return filepath.Join(s.StoragePath, "users", "by-id", filepath.Base(id)+".json")
}

func (s *FSCredentialStore) FindByEmail(ctx context.Context, email string) (*gk.User, error) {
	data, err := os.ReadFile(s.emailPath(email))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var user gk.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("corrupt user record for %s: %w", email, err)
	}
	return &user, nil
}

func (s *FSCredentialStore) GetUserByID(ctx context.Context, id string) (*gk.User, error) {
	if id == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.idPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ref fsUserRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("corrupt user index for %s: %w", id, err)
	}
	user, err := s.FindByEmail(ctx, ref.Email)
	if err != nil || user == nil || user.ID != id {
		return nil, err
	}
	return user, nil
}

func (s *FSCredentialStore) CreateUser(ctx context.Context, email, passwordHash string) (*gk.User, error) {
	user := &gk.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return nil, err
	}

	if err := createExclusiveFile(s.emailPath(email), data); err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", gk.ErrEmailTaken, email)
		}
		return nil, err
	}

	ref, err := json.Marshal(fsUserRef{Email: email})
	if err != nil {
		return nil, err
	}
	if err := writeAtomicFile(s.idPath(user.ID), ref); err != nil {
		// leave no half created user behind
		os.Remove(s.emailPath(email))
		return nil, err
	}
	return user, nil
}

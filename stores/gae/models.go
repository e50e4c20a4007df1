//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	gk "github.com/panyam/gatekeep"
)

// UserEntity is the Datastore entity for users. The key name is the user id.
type UserEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Email        string         `datastore:"email"`
	PasswordHash string         `datastore:"password_hash,noindex"`
	CreatedAt    time.Time      `datastore:"created_at"`
}

func (e *UserEntity) ToUser() *gk.User {
	return &gk.User{
		ID:           e.Key.Name,
		Email:        e.Email,
		PasswordHash: e.PasswordHash,
		CreatedAt:    e.CreatedAt,
	}
}

// UserEmailEntity maps an email (the key name) to its user.
type UserEmailEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

// SessionEntity holds one scs session. The key name is the session token.
type SessionEntity struct {
	Key    *datastore.Key `datastore:"__key__"`
	Data   []byte         `datastore:"data,noindex"`
	Expiry time.Time      `datastore:"expiry"`
}

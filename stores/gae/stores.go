//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"

	gk "github.com/panyam/gatekeep"
)

// Kind constants for Datastore entities
const (
	KindUser      = "User"
	KindUserEmail = "UserEmail"
	KindSession   = "Session"
)

func namespacedKey(namespace, kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = namespace
	return key
}

// ============================================================================
// CredentialStore
// ============================================================================

// CredentialStore implements gk.CredentialStore using Google Cloud Datastore
type CredentialStore struct {
	client    *datastore.Client
	namespace string
}

// NewCredentialStore creates a new Datastore-backed CredentialStore
func NewCredentialStore(client *datastore.Client, namespace string) *CredentialStore {
	return &CredentialStore{client: client, namespace: namespace}
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*gk.User, error) {
	var index UserEmailEntity
	if err := s.client.Get(ctx, namespacedKey(s.namespace, KindUserEmail, email), &index); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, err
	}
	return s.GetUserByID(ctx, index.UserID)
}

func (s *CredentialStore) GetUserByID(ctx context.Context, id string) (*gk.User, error) {
	if id == "" {
		return nil, nil
	}
	var entity UserEntity
	if err := s.client.Get(ctx, namespacedKey(s.namespace, KindUser, id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, err
	}
	return entity.ToUser(), nil
}

// CreateUser writes the user and its email index in one transaction. The
// transaction aborts if the email index already exists.
func (s *CredentialStore) CreateUser(ctx context.Context, email, passwordHash string) (*gk.User, error) {
	now := time.Now().UTC()
	emailKey := namespacedKey(s.namespace, KindUserEmail, email)
	user := &UserEntity{
		Key:          namespacedKey(s.namespace, KindUser, uuid.NewString()),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing UserEmailEntity
		err := tx.Get(emailKey, &existing)
		if err == nil {
			return fmt.Errorf("%w: %s", gk.ErrEmailTaken, email)
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if _, err := tx.Put(emailKey, &UserEmailEntity{UserID: user.Key.Name, CreatedAt: now}); err != nil {
			return err
		}
		_, err = tx.Put(user.Key, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user.ToUser(), nil
}

// ============================================================================
// SessionStore
// ============================================================================

// SessionStore implements scs.Store and scs.CtxStore using Google Cloud Datastore
type SessionStore struct {
	client    *datastore.Client
	namespace string
}

func NewSessionStore(client *datastore.Client, namespace string) *SessionStore {
	return &SessionStore{client: client, namespace: namespace}
}

func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

func (s *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

func (s *SessionStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}

func (s *SessionStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	var entity SessionEntity
	if err := s.client.Get(ctx, namespacedKey(s.namespace, KindSession, token), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !entity.Expiry.After(time.Now()) {
		return nil, false, nil
	}
	return entity.Data, true, nil
}

func (s *SessionStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	key := namespacedKey(s.namespace, KindSession, token)
	_, err := s.client.Put(ctx, key, &SessionEntity{Data: b, Expiry: expiry.UTC()})
	return err
}

func (s *SessionStore) DeleteCtx(ctx context.Context, token string) error {
	err := s.client.Delete(ctx, namespacedKey(s.namespace, KindSession, token))
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil
	}
	return err
}

// DeleteExpired removes sessions past their expiry.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	query := datastore.NewQuery(KindSession).
		FilterField("expiry", "<=", time.Now().UTC()).
		KeysOnly()
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}
	keys, err := s.client.GetAll(ctx, query, nil)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return len(keys), s.client.DeleteMulti(ctx, keys)
}

//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	gk "github.com/panyam/gatekeep"
)

// AutoMigrate runs database migrations for all gatekeep tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&SessionModel{},
	)
}

// =============================================================================
// CredentialStore
// =============================================================================

// CredentialStore implements gk.CredentialStore using GORM
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*gk.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).First(&model, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *CredentialStore) GetUserByID(ctx context.Context, id string) (*gk.User, error) {
	if id == "" {
		return nil, nil
	}
	var model UserModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToUser(), nil
}

// CreateUser inserts a user. Uniqueness of email is enforced by the unique
// index, so concurrent creates for one email leave exactly one row.
func (s *CredentialStore) CreateUser(ctx context.Context, email, passwordHash string) (*gk.User, error) {
	model := &UserModel{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
	}
	err := s.db.WithContext(ctx).Create(model).Error
	if err == nil {
		return model.ToUser(), nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: %s", gk.ErrEmailTaken, email)
	}

	// Dialectors without error translation: a row for this email means we lost.
	if existing, ferr := s.FindByEmail(ctx, email); ferr == nil && existing != nil {
		return nil, fmt.Errorf("%w: %s", gk.ErrEmailTaken, email)
	}
	return nil, err
}

// =============================================================================
// SessionStore
// =============================================================================

// SessionStore implements scs.Store (and scs.CtxStore) using GORM
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
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

// FindCtx returns the session data for an unexpired token.
func (s *SessionStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	var model SessionModel
	err := s.db.WithContext(ctx).
		First(&model, "token = ? AND expiry > ?", token, time.Now().UTC()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return model.Data, true, nil
}

func (s *SessionStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	model := &SessionModel{Token: token, Data: b, Expiry: expiry.UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "expiry"}),
	}).Create(model).Error
}

func (s *SessionStore) DeleteCtx(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Delete(&SessionModel{}, "token = ?", token).Error
}

// DeleteExpired removes sessions past their expiry and returns how many went.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&SessionModel{}, "expiry <= ?", time.Now().UTC())
	return result.RowsAffected, result.Error
}

// StartCleanup calls DeleteExpired every interval until ctx is done.
func (s *SessionStore) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.DeleteExpired(ctx); err != nil {
					slog.Error("error deleting expired sessions", "err", err)
				} else if n > 0 {
					slog.Debug("deleted expired sessions", "count", n)
				}
			}
		}
	}()
}

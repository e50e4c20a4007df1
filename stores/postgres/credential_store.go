package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	gk "github.com/panyam/gatekeep"
)

const uniqueViolation = "23505"

// CredentialStore implements gk.CredentialStore over the users table.
type CredentialStore struct {
	db DBTX
}

func NewCredentialStore(db DBTX) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*gk.User, error) {
	query :=
		`SELECT id, email, password_hash, created_at FROM users
		 WHERE email = $1
		 `
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *CredentialStore) GetUserByID(ctx context.Context, id string) (*gk.User, error) {
	if id == "" {
		return nil, nil
	}
	query :=
		`SELECT id, email, password_hash, created_at FROM users
		 WHERE id = $1
		 `
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// CreateUser inserts a user. A conflicting email inserts nothing and
// reports gk.ErrEmailTaken.
func (s *CredentialStore) CreateUser(ctx context.Context, email, passwordHash string) (*gk.User, error) {
	query :=
		`INSERT INTO users (id, email, password_hash)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING created_at
		 `

	user := &gk.User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash}
	err := s.db.QueryRowContext(ctx, query, user.ID, email, passwordHash).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, sql.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == uniqueViolation) {
			return nil, fmt.Errorf("%w: %s", gk.ErrEmailTaken, email)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (s *CredentialStore) scanUser(row *sql.Row) (*gk.User, error) {
	user := &gk.User{}
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

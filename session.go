package gatekeep

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alexedwards/scs/v2"
)

// SessionState is whether an identity is bound to the current session.
type SessionState int

const (
	Anonymous SessionState = iota
	Authenticated
)

func (s SessionState) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// SessionToken is the identity reference kept in the session. It is the
// user's ID and nothing else.
type SessionToken string

// UserFinder is the part of a CredentialStore needed to resolve sessions.
type UserFinder interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// SessionManager binds authenticated users to scs sessions. The context
// passed to every method must carry a loaded scs session (see
// scs.SessionManager.LoadAndSave).
type SessionManager struct {
	Session *scs.SessionManager
	Users   UserFinder

	// Name of the session variable holding the user id. Defaults to "loggedInUserId".
	UserParamName string

	Logger *slog.Logger
}

// NewSessionManager creates a SessionManager with default settings.
func NewSessionManager(session *scs.SessionManager, users UserFinder) *SessionManager {
	return (&SessionManager{Session: session, Users: users}).EnsureDefaults()
}

func (m *SessionManager) EnsureDefaults() *SessionManager {
	if m.UserParamName == "" {
		m.UserParamName = "loggedInUserId"
	}
	if m.Logger == nil {
		m.Logger = slog.Default()
	}
	return m
}

// Establish binds user to the session. After this the Gate admits the
// session. It only fails if user has no identity to bind.
func (m *SessionManager) Establish(ctx context.Context, user *User) (SessionToken, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("cannot establish a session without a user id")
	}
	m.Session.Put(ctx, m.UserParamName, user.ID)
	return SessionToken(user.ID), nil
}

// Resolve returns the user bound to the session, re-read from the store.
func (m *SessionManager) Resolve(ctx context.Context) (*User, bool) {
	userID := m.Session.GetString(ctx, m.UserParamName)
	if userID == "" {
		return nil, false
	}
	user, err := m.Users.GetUserByID(ctx, userID)
	if err != nil {
		m.Logger.Error("error resolving session user", "userId", userID, "err", err)
		return nil, false
	}
	if user == nil {
		m.Logger.Warn("session refers to unknown user", "userId", userID)
		return nil, false
	}
	return user, true
}

// State reports whether an identity is bound, without touching the store.
func (m *SessionManager) State(ctx context.Context) SessionState {
	if m.Session.GetString(ctx, m.UserParamName) != "" {
		return Authenticated
	}
	return Anonymous
}

// Clear logs the session out. It returns false if there was nothing to clear.
// A failure to tear down the backing session is returned as a LogoutError.
func (m *SessionManager) Clear(ctx context.Context) (bool, error) {
	if m.State(ctx) == Anonymous {
		return false, nil
	}
	if err := m.Session.Destroy(ctx); err != nil {
		return true, wrapError(KindLogout, "error destroying session", err)
	}
	return true, nil
}

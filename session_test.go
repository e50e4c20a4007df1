package gatekeep_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alexedwards/scs/v2"

	gk "github.com/panyam/gatekeep"
)

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	alice := registerUser(t, store, "alice@example.com", "hunter2")
	session := scs.New()
	sessions := gk.NewSessionManager(session, store)
	ctx := loadSession(t, session)

	if sessions.State(ctx) != gk.Anonymous {
		t.Fatal("Expected a fresh session to be anonymous")
	}
	if _, ok := sessions.Resolve(ctx); ok {
		t.Fatal("Expected nothing to resolve on a fresh session")
	}

	token, err := sessions.Establish(ctx, alice)
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	if string(token) != alice.ID {
		t.Errorf("Expected token to be the user id, got %q", token)
	}
	if sessions.State(ctx) != gk.Authenticated {
		t.Error("Expected authenticated state after Establish")
	}
	if got := session.GetString(ctx, "loggedInUserId"); got != alice.ID {
		t.Errorf("Expected only the user id in the session, got %q", got)
	}

	user, ok := sessions.Resolve(ctx)
	if !ok || user.Email != "alice@example.com" {
		t.Fatalf("Expected alice to resolve, got %v, %v", user, ok)
	}

	cleared, err := sessions.Clear(ctx)
	if err != nil || !cleared {
		t.Fatalf("Expected Clear to succeed, got %v, %v", cleared, err)
	}
	if sessions.State(ctx) != gk.Anonymous {
		t.Error("Expected anonymous state after Clear")
	}
	if _, ok := sessions.Resolve(ctx); ok {
		t.Error("Expected nothing to resolve after Clear")
	}
}

func TestSessionEstablishRequiresUserID(t *testing.T) {
	session := scs.New()
	sessions := gk.NewSessionManager(session, newTestStore(t))
	ctx := loadSession(t, session)

	if _, err := sessions.Establish(ctx, nil); err == nil {
		t.Error("Expected error for nil user")
	}
	if _, err := sessions.Establish(ctx, &gk.User{Email: "x@example.com"}); err == nil {
		t.Error("Expected error for user without id")
	}
	if sessions.State(ctx) != gk.Anonymous {
		t.Error("Expected failed Establish to leave the session anonymous")
	}
}

func TestSessionResolveRereadsStore(t *testing.T) {
	session := scs.New()
	store := newTestStore(t)
	sessions := gk.NewSessionManager(session, store)
	ctx := loadSession(t, session)

	// a user id the store does not know about
	if _, err := sessions.Establish(ctx, &gk.User{ID: "ghost"}); err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	if sessions.State(ctx) != gk.Authenticated {
		t.Error("Expected State to only look at the session")
	}
	if _, ok := sessions.Resolve(ctx); ok {
		t.Error("Expected unknown user not to resolve")
	}
}

func TestSessionResolveStoreError(t *testing.T) {
	session := scs.New()
	sessions := gk.NewSessionManager(session, brokenStore{})
	ctx := loadSession(t, session)
	sessions.Establish(ctx, &gk.User{ID: "u1"})

	if _, ok := sessions.Resolve(ctx); ok {
		t.Error("Expected store errors to deny")
	}
}

func TestSessionClearAnonymous(t *testing.T) {
	session := scs.New()
	session.Store = newUndeletableStore()
	sessions := gk.NewSessionManager(session, newTestStore(t))
	ctx := loadSession(t, session)

	cleared, err := sessions.Clear(ctx)
	if cleared || err != nil {
		t.Errorf("Expected (false, nil) for an anonymous session, got %v, %v", cleared, err)
	}
}

func TestSessionClearFailure(t *testing.T) {
	session := scs.New()
	session.Store = newUndeletableStore()
	sessions := gk.NewSessionManager(session, newTestStore(t))
	ctx := loadSession(t, session)
	sessions.Establish(ctx, &gk.User{ID: "u1"})
	token, _, err := session.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	ctx, err = session.Load(context.Background(), token)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	_, err = sessions.Clear(ctx)
	expectKind(t, err, gk.KindLogout)
	if !errors.Is(err, gk.ErrLogout) {
		t.Error("Expected errors.Is(err, ErrLogout)")
	}
}

func TestSessionStateString(t *testing.T) {
	if gk.Anonymous.String() != "anonymous" || gk.Authenticated.String() != "authenticated" {
		t.Errorf("Unexpected state names: %s, %s", gk.Anonymous, gk.Authenticated)
	}
}

func TestSessionCustomParamName(t *testing.T) {
	session := scs.New()
	store := newTestStore(t)
	alice := registerUser(t, store, "alice@example.com", "hunter2")
	sessions := &gk.SessionManager{Session: session, Users: store, UserParamName: "uid"}
	sessions.EnsureDefaults()
	ctx := loadSession(t, session)

	sessions.Establish(ctx, alice)
	if session.GetString(ctx, "uid") != alice.ID {
		t.Error("Expected user id under the custom key")
	}
}

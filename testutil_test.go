package gatekeep_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"golang.org/x/crypto/bcrypt"

	gk "github.com/panyam/gatekeep"
	"github.com/panyam/gatekeep/stores/fs"
)

func newTestStore(t *testing.T) *fs.FSCredentialStore {
	t.Helper()
	return fs.NewFSCredentialStore(t.TempDir())
}

func newTestHasher() *gk.BcryptHasher {
	return &gk.BcryptHasher{Cost: bcrypt.MinCost}
}

func registerUser(t *testing.T, store gk.CredentialStore, email, password string) *gk.User {
	t.Helper()
	user, err := gk.NewLocalVerifier(store, newTestHasher()).Register(context.Background(), email, password)
	if err != nil {
		t.Fatalf("Failed to register %s: %v", email, err)
	}
	return user
}

// loadSession returns a context carrying a fresh scs session.
func loadSession(t *testing.T, session *scs.SessionManager) context.Context {
	t.Helper()
	ctx, err := session.Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	return ctx
}

func expectKind(t *testing.T, err error, kind gk.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", kind)
	}
	if got := gk.KindOf(err); got != kind {
		t.Fatalf("Expected %s error, got %s (%v)", kind, got, err)
	}
}

var errStoreDown = errors.New("store down")

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) FindByEmail(ctx context.Context, email string) (*gk.User, error) {
	return nil, errStoreDown
}

func (brokenStore) GetUserByID(ctx context.Context, id string) (*gk.User, error) {
	return nil, errStoreDown
}

func (brokenStore) CreateUser(ctx context.Context, email, passwordHash string) (*gk.User, error) {
	return nil, errStoreDown
}

// racingStore never finds anyone and always loses the insert race.
type racingStore struct{}

func (racingStore) FindByEmail(ctx context.Context, email string) (*gk.User, error) {
	return nil, nil
}

func (racingStore) GetUserByID(ctx context.Context, id string) (*gk.User, error) {
	return nil, nil
}

func (racingStore) CreateUser(ctx context.Context, email, passwordHash string) (*gk.User, error) {
	return nil, gk.ErrEmailTaken
}

// undeletableStore is an in memory scs store that cannot delete sessions it
// has committed.
type undeletableStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newUndeletableStore() *undeletableStore {
	return &undeletableStore{data: map[string][]byte{}}
}

func (s *undeletableStore) Find(token string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[token]
	return b, ok, nil
}

func (s *undeletableStore) Commit(token string, b []byte, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[token] = b
	return nil
}

func (s *undeletableStore) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[token]; !ok {
		return nil
	}
	return errors.New("session backend unavailable")
}

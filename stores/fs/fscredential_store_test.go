package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gk "github.com/panyam/gatekeep"
)

func TestFSCredentialStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewFSCredentialStore(t.TempDir())

	created, err := store.CreateUser(ctx, "alice@example.com", "hash")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice@example.com", created.Email)

	byEmail, err := store.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, created.ID, byEmail.ID)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	byID, err := store.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "alice@example.com", byID.Email)
}

func TestFSCredentialStore_Missing(t *testing.T) {
	ctx := context.Background()
	store := NewFSCredentialStore(t.TempDir())

	u, err := store.FindByEmail(ctx, "nobody@example.com")
	assert.NoError(t, err)
	assert.Nil(t, u)

	u, err = store.GetUserByID(ctx, "does-not-exist")
	assert.NoError(t, err)
	assert.Nil(t, u)

	u, err = store.GetUserByID(ctx, "")
	assert.NoError(t, err)
	assert.Nil(t, u)
}

func TestFSCredentialStore_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := NewFSCredentialStore(t.TempDir())

	_, err := store.CreateUser(ctx, "bob@example.com", "h1")
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, "bob@example.com", "h2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gk.ErrEmailTaken))

	u, err := store.FindByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "h1", u.PasswordHash)
}

func TestFSCredentialStore_ConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewFSCredentialStore(t.TempDir())

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, taken := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateUser(ctx, "carol@example.com", gk.FederatedOnlyPassword)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, gk.ErrEmailTaken) {
				taken++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, taken)

	entries, err := os.ReadDir(filepath.Join(store.StoragePath, "users", "by-id"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFSCredentialStore_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	store := NewFSCredentialStore(t.TempDir())

	path := store.emailPath("dave@example.com")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := store.FindByEmail(ctx, "dave@example.com")
	assert.Error(t, err)
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MigrationsApplied(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM roles WHERE name IN ('admin', 'member')`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNew_ReopenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "labapi.db")

	s, err := New(ctx, path)
	require.NoError(t, err)
	account := newTestAccount("persist@lab.example.org")
	require.NoError(t, s.CreateAccount(ctx, account))
	require.NoError(t, s.Close())

	// повторный запуск миграций не ломает существующую базу
	s, err = New(ctx, path)
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	retrieved, err := s.GetAccountByEmail(ctx, "persist@lab.example.org")
	require.NoError(t, err)
	assert.Equal(t, account.ID, retrieved.ID)
}

func setupTestStorage(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	// Используем in-memory database для тестов
	storage, err := New(ctx, ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		_ = storage.Close()
	}

	return storage, cleanup
}

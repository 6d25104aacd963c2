package repository

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupCredentialRepo(t *testing.T, opts ...CredentialOption) (*CredentialRepository, func()) {
	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	repo := NewCredentialRepository(bunDB, opts...)
	require.NoError(t, repo.CreateTable(context.Background()))

	cleanup := func() {
		_ = bunDB.Close()
	}

	return repo, cleanup
}

func TestCredentialRepositoryLoadEmpty(t *testing.T) {
	repo, cleanup := setupCredentialRepo(t)
	defer cleanup()

	token, ok, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)
}

func TestCredentialRepositorySaveOverwritesAndClear(t *testing.T) {
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo, cleanup := setupCredentialRepo(t, WithCredentialClock(func() time.Time { return clock }))
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "first"))
	clock = clock.Add(time.Minute)
	require.NoError(t, repo.Save(ctx, "second"))

	token, ok, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", token)

	updated, ok, err := repo.UpdatedAt(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, clock, updated, time.Second)

	rows, err := repo.db.NewSelect().Model((*CredentialModel)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	require.NoError(t, repo.Clear(ctx))
	token, ok, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)

	// clearing twice is fine
	require.NoError(t, repo.Clear(ctx))
}

func TestCredentialRepositorySaveEmptyClears(t *testing.T) {
	repo, cleanup := setupCredentialRepo(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, "token"))
	require.NoError(t, repo.Save(ctx, ""))

	_, ok, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialRepositoryNamesAreIsolated(t *testing.T) {
	repo, cleanup := setupCredentialRepo(t)
	defer cleanup()

	other := NewCredentialRepository(repo.db, WithCredentialName("other"))

	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, "mine"))
	require.NoError(t, other.Save(ctx, "theirs"))
	require.NoError(t, other.Clear(ctx))

	token, ok, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "mine", token)
}

func TestCredentialRepositoryConcurrentSaveAndClear(t *testing.T) {
	repo, cleanup := setupCredentialRepo(t)
	defer cleanup()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Save(ctx, "token"))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Clear(ctx))
		}()
	}
	wg.Wait()

	token, ok, err := repo.Load(ctx)
	require.NoError(t, err)
	if ok {
		assert.Equal(t, "token", token)
	} else {
		assert.Empty(t, token)
	}
}

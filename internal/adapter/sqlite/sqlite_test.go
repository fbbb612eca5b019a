package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltline/polar-engine/internal/adapter/sqlite"
	"github.com/saltline/polar-engine/internal/polar"
)

func openRepo(t *testing.T) (*sqlite.Repo, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "polar.db")
	repo, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func TestRoundTrip(t *testing.T) {
	repo, _ := openRepo(t)
	ctx := context.Background()

	want := map[polar.Key]polar.Bucket{
		{Speed: 6, Angle: 5}:  {Count: 42, Mean: 6.81, M2: 3.2},
		{Speed: 6, Angle: 9}:  {Count: 3, Mean: 7.05, M2: 0.0},
		{Speed: 10, Angle: 14}: {Count: 180, Mean: 8.4, M2: 12.9},
	}
	for k, b := range want {
		require.NoError(t, repo.Upsert(ctx, k, b))
	}

	got, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUpsertReplaces(t *testing.T) {
	repo, _ := openRepo(t)
	ctx := context.Background()
	key := polar.Key{Speed: 4, Angle: 7}

	require.NoError(t, repo.Upsert(ctx, key, polar.Bucket{Count: 1, Mean: 5.0}))
	require.NoError(t, repo.Upsert(ctx, key, polar.Bucket{Count: 2, Mean: 5.5, M2: 0.5}))

	got, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, polar.Bucket{Count: 2, Mean: 5.5, M2: 0.5}, got[key])
}

func TestClear(t *testing.T) {
	repo, _ := openRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, polar.Key{Speed: 1, Angle: 1}, polar.Bucket{Count: 9, Mean: 4.2}))
	require.NoError(t, repo.Clear(ctx))

	got, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadAllEmpty(t *testing.T) {
	repo, _ := openRepo(t)

	got, err := repo.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

// Reopening the same file must see what the previous session wrote.
func TestSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "polar.db")

	repo, err := sqlite.Open(path)
	require.NoError(t, err)
	key := polar.Key{Speed: 8, Angle: 4}
	require.NoError(t, repo.Upsert(ctx, key, polar.Bucket{Count: 77, Mean: 7.7, M2: 1.1}))
	require.NoError(t, repo.Close())

	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, polar.Bucket{Count: 77, Mean: 7.7, M2: 1.1}, got[key])
}

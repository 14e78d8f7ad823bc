// ABOUTME: Tests for the SQLite draft store
// ABOUTME: Covers get/set round trips, upserts, deletes, prefix listing, and purging

package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestSQLiteStore_SetGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "draft:A", `{"qty":5}`))

	got, err := s.Get(ctx, "draft:A")
	require.NoError(t, err)
	assert.Equal(t, `{"qty":5}`, got)
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Set_Overwrites(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "draft:A", `{"qty":1}`))
	require.NoError(t, s.Set(ctx, "draft:A", `{"qty":2}`))

	got, err := s.Get(ctx, "draft:A")
	require.NoError(t, err)
	assert.Equal(t, `{"qty":2}`, got)

	records, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "draft:A", `{}`))
	require.NoError(t, s.Delete(ctx, "draft:A"))

	_, err := s.Get(ctx, "draft:A")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "draft:A"), ErrNotFound)
}

func TestSQLiteStore_List_Prefix(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "draft:oil:2", `{"a":1}`))
	require.NoError(t, s.Set(ctx, "draft:oil:1", `{}`))
	require.NoError(t, s.Set(ctx, "draft:fuel:1", `{}`))
	require.NoError(t, s.Set(ctx, "theme", `"dark"`))

	records, err := s.List(ctx, "draft:oil:")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "draft:oil:1", records[0].Key)
	assert.Equal(t, "draft:oil:2", records[1].Key)
	assert.Equal(t, len(`{"a":1}`), records[1].Size)
	assert.False(t, records[0].UpdatedAt.IsZero())

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSQLiteStore_List_PrefixWithWildcards(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a_b", `1`))
	require.NoError(t, s.Set(ctx, "axb", `2`))

	records, err := s.List(ctx, "a_")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a_b", records[0].Key)
}

func TestSQLiteStore_PurgeOlderThan(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "old", `1`))
	_, err := s.db.ExecContext(ctx, `UPDATE drafts SET updated_at = ? WHERE key = ?`,
		time.Now().UTC().Add(-48*time.Hour).Format(timeLayout), "old")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "fresh", `2`))

	n, err := s.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSQLiteStore_PurgeOlderThan_RejectsNonPositive(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.PurgeOlderThan(context.Background(), 0)
	assert.Error(t, err)
}

func TestSQLiteStore_Persists_AcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "drafts.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "draft:A", `{"qty":5}`))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "draft:A")
	require.NoError(t, err)
	assert.Equal(t, `{"qty":5}`, got)
}

func TestNewSQLiteStoreWithDriver_Unsupported(t *testing.T) {
	_, err := NewSQLiteStoreWithDriver("postgres", filepath.Join(t.TempDir(), "x.db"))
	assert.Error(t, err)
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", "v"))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewSQLiteStoreWithDriver_CGO(t *testing.T) {
	s, err := NewSQLiteStoreWithDriver(DriverCGO, filepath.Join(t.TempDir(), "cgo.db"))
	if err != nil && strings.Contains(err.Error(), "CGO_ENABLED") {
		t.Skip("go-sqlite3 needs cgo")
	}
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "draft:oil:1", `{"qty":1}`))
	got, err := s.Get(ctx, "draft:oil:1")
	require.NoError(t, err)
	assert.Equal(t, `{"qty":1}`, got)
}

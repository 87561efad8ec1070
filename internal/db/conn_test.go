package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	t.Run("creates directory and database", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "test.db")

		ctx := context.Background()
		store, err := NewStore(ctx, dbPath)
		require.NoError(t, err)
		defer store.Close()

		_, err = os.Stat(dbPath)
		assert.NoError(t, err)

		var result int
		err = store.QueryRowContext(ctx, "SELECT 1").Scan(&result)
		assert.NoError(t, err)
		assert.Equal(t, 1, result)
	})

	t.Run("sets pragmas", func(t *testing.T) {
		ctx := context.Background()
		store, err := NewStore(ctx, filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		defer store.Close()

		var mode string
		require.NoError(t, store.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", mode)

		var fk int
		require.NoError(t, store.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		assert.Equal(t, 1, fk)
	})

	t.Run("in memory", func(t *testing.T) {
		ctx := context.Background()
		store, err := NewStore(ctx, ":memory:")
		require.NoError(t, err)
		defer store.Close()

		_, err = store.Migrate(ctx)
		assert.NoError(t, err)
	})
}

func TestStore_Migrate(t *testing.T) {
	t.Run("applies migrations", func(t *testing.T) {
		ctx := context.Background()
		store, err := NewStore(ctx, filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		defer store.Close()

		n, err := store.Migrate(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		for _, table := range []string{"jobs", "runs", "deliveries"} {
			var name string
			err = store.QueryRowContext(ctx,
				"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
			assert.NoError(t, err, table)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		store := NewTestStore(t)
		ctx := context.Background()

		n, err := store.Migrate(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		jobs, err := store.ListJobs(ctx)
		assert.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("rollback", func(t *testing.T) {
		store := NewTestStore(t)
		ctx := context.Background()

		file, err := store.Rollback(ctx)
		require.NoError(t, err)
		assert.Equal(t, "001_init.sql", file)

		var count int
		require.NoError(t, store.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='jobs'").Scan(&count))
		assert.Zero(t, count)

		_, err = store.Rollback(ctx)
		assert.ErrorIs(t, err, ErrNoMigrations)

		n, err := store.Migrate(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestSplitMigration(t *testing.T) {
	t.Run("splits up and down", func(t *testing.T) {
		content := `-- +migrate Up
CREATE TABLE test (id INTEGER);

-- +migrate Down
DROP TABLE test;
`
		up, down := splitMigration(content)
		assert.Equal(t, "CREATE TABLE test (id INTEGER);", up)
		assert.Equal(t, "DROP TABLE test;", down)
	})

	t.Run("handles no down marker", func(t *testing.T) {
		up, down := splitMigration("CREATE TABLE test (id INTEGER);")
		assert.Equal(t, "CREATE TABLE test (id INTEGER);", up)
		assert.Empty(t, down)
	})
}

// NewTestStore provides a migrated test database.
func NewTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	ctx := context.Background()
	store, err := NewStore(ctx, dbPath)
	require.NoError(t, err)

	_, err = store.Migrate(ctx)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

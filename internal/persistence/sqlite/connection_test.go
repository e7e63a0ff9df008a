package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hrms/internal/persistence"
	"github.com/example/hrms/internal/persistence/sqlite"
)

func TestConfigDSN(t *testing.T) {
	t.Parallel()

	dsn := sqlite.DefaultConfig("data/hrms.db").DSN()
	assert.True(t, strings.HasPrefix(dsn, "file:data/hrms.db?"), dsn)
	assert.Contains(t, dsn, "_pragma=foreign_keys(1)")
	assert.Contains(t, dsn, "_pragma=busy_timeout(5000)")
	assert.Contains(t, dsn, "_pragma=journal_mode(WAL)")
	assert.Contains(t, dsn, "_txlock=immediate")

	withQuery := sqlite.Config{Path: "file:test.db?mode=memory"}.DSN()
	assert.Equal(t, "file:test.db?mode=memory&_pragma=foreign_keys(1)&_txlock=immediate", withQuery)
}

func TestConnectionPool_ClosedPoolRejectsWork(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool, err := sqlite.NewConnectionPool(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "closed.db")))
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close(), "second close must be a no-op")
	assert.True(t, pool.Closed())

	assert.ErrorIs(t, pool.Ping(ctx), persistence.ErrPoolClosed)
	err = pool.WithTransaction(ctx, func(*sql.Tx) error { return nil })
	assert.ErrorIs(t, err, persistence.ErrPoolClosed)

	storage := sqlite.NewStorage(pool)
	_, err = storage.Users.ListUsers(ctx, persistence.UserFilter{})
	assert.ErrorIs(t, err, persistence.ErrPoolClosed)
}

func TestConnectionPool_WithTransactionRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool, err := sqlite.NewConnectionPool(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "tx.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	_, err = pool.DB().ExecContext(ctx, `CREATE TABLE items (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (id) VALUES ('a')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Zero(t, count)
}

func TestErrorMapper(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool, err := sqlite.NewConnectionPool(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "errors.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	_, err = pool.DB().ExecContext(ctx, `
		CREATE TABLE parents (id TEXT PRIMARY KEY);
		CREATE TABLE children (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL REFERENCES parents(id),
			size INTEGER NOT NULL CHECK (size > 0)
		);
		INSERT INTO parents (id) VALUES ('p1');
	`)
	require.NoError(t, err)

	mapper := sqlite.NewErrorMapper()
	exec := func(query string) error {
		_, err := pool.DB().ExecContext(ctx, query)
		return mapper.MapError(err)
	}

	assert.NoError(t, mapper.MapError(nil))
	assert.ErrorIs(t, mapper.MapError(sql.ErrNoRows), persistence.ErrNotFound)
	assert.ErrorIs(t, exec(`INSERT INTO parents (id) VALUES ('p1')`), persistence.ErrDuplicate)
	assert.ErrorIs(t, exec(`INSERT INTO children (id, parent_id, size) VALUES ('c1', 'missing', 1)`), persistence.ErrForeignKeyViolation)
	assert.ErrorIs(t, exec(`INSERT INTO children (id, parent_id, size) VALUES ('c2', 'p1', 0)`), persistence.ErrConstraintViolation)
}

func TestStorage_MigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "migrate.db"), BusyTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	applied, err := storage.Migrate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, applied)

	applied, err = storage.Migrate(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, applied)

	status, err := storage.MigrationStatus(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "006", status.CurrentVersion)
	assert.Empty(t, status.Pending)
	assert.Len(t, status.Applied, 6)
}

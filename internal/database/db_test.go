package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, profile DatabaseProfile) *DB {
	t.Helper()

	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), "test.db"),
		Profile: profile,
		Name:    "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewOpensAndPings(t *testing.T) {
	db := newTestDB(t, ProfileStandard)

	assert.Equal(t, "test", db.Name())
	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.QuickCheck(context.Background()))
}

func TestWALCheckpoint(t *testing.T) {
	db := newTestDB(t, ProfileStandard)

	_, err := db.Conn().Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	assert.NoError(t, db.WALCheckpoint("TRUNCATE"))
	// Empty mode defaults to TRUNCATE.
	assert.NoError(t, db.WALCheckpoint(""))
}

func TestWithTransactionCommits(t *testing.T) {
	db := newTestDB(t, ProfileCache)
	conn := db.Conn()

	_, err := conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	err = WithTransaction(conn, func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO t (id) VALUES (1)")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM t").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db := newTestDB(t, ProfileCache)
	conn := db.Conn()

	_, err := conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	err = WithTransaction(conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO t (id) VALUES (1)"); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM t").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransactionRecoversPanic(t *testing.T) {
	db := newTestDB(t, ProfileCache)
	conn := db.Conn()

	err := WithTransaction(conn, func(tx *sql.Tx) error {
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")
}

func TestMaintenanceJob(t *testing.T) {
	db := newTestDB(t, ProfileStandard)

	job := NewMaintenanceJob(db, zerolog.Nop())
	assert.Equal(t, "db_maintenance_test", job.Name())
	assert.NoError(t, job.Run())
}

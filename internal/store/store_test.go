package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesSchema(t *testing.T) {
	s := createTestStore(t)

	for _, table := range []string{"buddy_requests", "buddy_matches", "procedure_leases"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s", table)
		assert.Equal(t, table, name)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.InsertRequest(context.Background(), createTestRequest("r1", "m1", 0)))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetRequest(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.Owner)
}

func TestOpen_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_requests_one_active_per_owner'",
	).Scan(&name)
	require.NoError(t, err)
}

func TestOpen_MigratesLeaseToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")

	old, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = old.Exec(`
		CREATE TABLE procedure_leases (
			name        TEXT    PRIMARY KEY,
			holder      TEXT    NOT NULL,
			expires_at  INTEGER NOT NULL
		);
		INSERT INTO procedure_leases (name, holder, expires_at) VALUES ('matching', 'old-node', 0);
		PRAGMA user_version = 1;
	`)
	require.NoError(t, err)
	require.NoError(t, old.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var token string
	require.NoError(t, s.db.QueryRow(
		`SELECT token FROM procedure_leases WHERE name = 'matching'`,
	).Scan(&token))
	assert.Empty(t, token)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "licenses.db")

	database, err := Open(path)
	require.NoError(t, err)
	defer database.Close()

	version, err := SchemaVersion(database)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	for _, table := range []string{"license_keys", "devices", "audit_logs", "admin_users"} {
		var n int
		err := database.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}

	var fk int
	require.NoError(t, database.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.db")

	database, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(database))
	require.NoError(t, database.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	version, err := SchemaVersion(reopened)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
}

package db

import (
	"database/sql"
	"fmt"
)

// currentSchemaVersion is the version written by initializeSchema
const currentSchemaVersion = 1

// RunMigrations executes all database migrations
func RunMigrations(db *DB) error {
	var tableExists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !tableExists {
		if err := initializeSchema(db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	version, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	if version < 1 || version > currentSchemaVersion {
		return fmt.Errorf("invalid schema version: %d", version)
	}

	return nil
}

// SchemaVersion returns the most recently applied schema version
func SchemaVersion(db *DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT version FROM schema_version
		ORDER BY applied_at DESC, version DESC LIMIT 1
	`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current schema version: %w", err)
	}
	return version, nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(db *DB) error {
	tx, err := db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	steps := []string{
		schemaVersionTable,
		licenseKeysTable,
		licenseKeysIndexes,
		devicesTable,
		devicesIndexes,
		auditLogsTable,
		auditLogsIndexes,
		adminUsersTable,
	}
	for _, stmt := range steps {
		if err := execSQL(tx, stmt); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}

// execSQL executes a SQL statement
func execSQL(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

// Schema definitions
const (
	schemaVersionTable = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	licenseKeysTable = `
CREATE TABLE license_keys (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    key_hash      TEXT NOT NULL UNIQUE,
    salt          TEXT NOT NULL UNIQUE,
    display_hint  TEXT NOT NULL,
    max_devices   INTEGER NOT NULL DEFAULT 1 CHECK (max_devices > 0),
    status        TEXT NOT NULL DEFAULT 'active'
                  CHECK (status IN ('active', 'suspended', 'revoked', 'expired')),
    expires_at    DATETIME,
    note          TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	licenseKeysIndexes = `
CREATE INDEX idx_license_keys_status ON license_keys(status);
CREATE INDEX idx_license_keys_created_at ON license_keys(created_at)`

	devicesTable = `
CREATE TABLE devices (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    license_id    INTEGER NOT NULL,
    fingerprint   TEXT NOT NULL,
    hardware_info TEXT,
    last_seen     DATETIME NOT NULL,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,

    UNIQUE (license_id, fingerprint),
    FOREIGN KEY (license_id) REFERENCES license_keys(id) ON DELETE CASCADE
)`

	devicesIndexes = `
CREATE INDEX idx_devices_license_id ON devices(license_id);
CREATE INDEX idx_devices_last_seen ON devices(last_seen)`

	auditLogsTable = `
CREATE TABLE audit_logs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    action      TEXT NOT NULL,
    details     TEXT,
    ip_address  TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	auditLogsIndexes = `
CREATE INDEX idx_audit_action ON audit_logs(action);
CREATE INDEX idx_audit_created_at ON audit_logs(created_at)`

	adminUsersTable = `
CREATE TABLE admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    totp_secret   TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
)

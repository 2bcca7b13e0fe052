package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adamscao/licenseserver/internal/models"
)

// LicenseRepository handles license key data access
type LicenseRepository struct {
	db *sql.DB
}

// NewLicenseRepository creates a new license repository
func NewLicenseRepository(db *sql.DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

// Create inserts a new license key
func (r *LicenseRepository) Create(key *models.LicenseKey) error {
	query := `
		INSERT INTO license_keys (key_hash, salt, display_hint, max_devices, status, expires_at, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := key.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := r.db.Exec(query,
		key.KeyHash,
		key.Salt,
		key.DisplayHint,
		key.MaxDevices,
		key.Status,
		nullTime(key.ExpiresAt),
		key.Note,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create license key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	key.ID = id
	key.CreatedAt = now
	key.UpdatedAt = now

	return nil
}

// GetByID retrieves a license key by id
func (r *LicenseRepository) GetByID(id int64) (*models.LicenseKey, error) {
	query := `
		SELECT id, key_hash, salt, display_hint, max_devices, status, expires_at, note, created_at, updated_at,
			(SELECT COUNT(*) FROM devices d WHERE d.license_id = license_keys.id)
		FROM license_keys
		WHERE id = ?
	`

	key, err := scanLicenseKey(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("license key %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license key: %w", err)
	}

	return key, nil
}

// List returns every license key, newest first, with its bound device count
func (r *LicenseRepository) List() ([]*models.LicenseKey, error) {
	query := `
		SELECT lk.id, lk.key_hash, lk.salt, lk.display_hint, lk.max_devices, lk.status, lk.expires_at, lk.note,
			lk.created_at, lk.updated_at,
			(SELECT COUNT(*) FROM devices d WHERE d.license_id = lk.id)
		FROM license_keys lk
		ORDER BY lk.created_at DESC, lk.id DESC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list license keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.LicenseKey
	for rows.Next() {
		key, err := scanLicenseKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// ListCredentials returns the fields needed to match a raw key against every
// stored hash. Each key has its own salt, so there is no indexed lookup.
func (r *LicenseRepository) ListCredentials() ([]*models.LicenseKey, error) {
	query := `
		SELECT id, key_hash, salt, status, max_devices, expires_at
		FROM license_keys
		ORDER BY id
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list key credentials: %w", err)
	}
	defer rows.Close()

	var keys []*models.LicenseKey
	for rows.Next() {
		key := &models.LicenseKey{}
		var expiresAt sql.NullTime
		if err := rows.Scan(&key.ID, &key.KeyHash, &key.Salt, &key.Status, &key.MaxDevices, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan key credentials: %w", err)
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			key.ExpiresAt = &t
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Update applies a partial update and bumps updated_at
func (r *LicenseRepository) Update(id int64, update models.LicenseKeyUpdate, now time.Time) error {
	var fields []string
	var args []interface{}

	if update.MaxDevices != nil {
		fields = append(fields, "max_devices = ?")
		args = append(args, *update.MaxDevices)
	}
	if update.ClearExpiry {
		fields = append(fields, "expires_at = NULL")
	} else if update.ExpiresAt != nil {
		fields = append(fields, "expires_at = ?")
		args = append(args, update.ExpiresAt.UTC())
	}
	if update.Note != nil {
		fields = append(fields, "note = ?")
		args = append(args, *update.Note)
	}
	if update.Status != nil {
		fields = append(fields, "status = ?")
		args = append(args, *update.Status)
	}

	fields = append(fields, "updated_at = ?")
	args = append(args, now, id)

	query := fmt.Sprintf(`UPDATE license_keys SET %s WHERE id = ?`, strings.Join(fields, ", "))

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update license key: %w", err)
	}

	return requireAffected(result, "license key", id)
}

// UpdateStatus sets the status unconditionally
func (r *LicenseRepository) UpdateStatus(id int64, status string, now time.Time) error {
	query := `UPDATE license_keys SET status = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Exec(query, status, now, id)
	if err != nil {
		return fmt.Errorf("failed to update license status: %w", err)
	}

	return requireAffected(result, "license key", id)
}

// MarkExpired moves an active key to expired. It reports whether this call
// performed the transition, so concurrent callers observe it exactly once.
func (r *LicenseRepository) MarkExpired(id int64, now time.Time) (bool, error) {
	query := `
		UPDATE license_keys
		SET status = 'expired', updated_at = ?
		WHERE id = ? AND status = 'active'
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark license expired: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count > 0, nil
}

// Touch bumps updated_at
func (r *LicenseRepository) Touch(id int64, now time.Time) error {
	_, err := r.db.Exec(`UPDATE license_keys SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("failed to touch license key: %w", err)
	}
	return nil
}

// Delete removes a license key; its devices go with it through the foreign key cascade
func (r *LicenseRepository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM license_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete license key: %w", err)
	}

	return requireAffected(result, "license key", id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLicenseKey(row rowScanner) (*models.LicenseKey, error) {
	key := &models.LicenseKey{}
	var expiresAt sql.NullTime

	err := row.Scan(
		&key.ID,
		&key.KeyHash,
		&key.Salt,
		&key.DisplayHint,
		&key.MaxDevices,
		&key.Status,
		&expiresAt,
		&key.Note,
		&key.CreatedAt,
		&key.UpdatedAt,
		&key.DeviceCount,
	)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		t := expiresAt.Time
		key.ExpiresAt = &t
	}

	return key, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func requireAffected(result sql.Result, kind string, id int64) error {
	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}

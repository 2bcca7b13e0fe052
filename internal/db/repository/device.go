package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adamscao/licenseserver/internal/models"
)

// DeviceRepository handles device binding data access
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// AdmitFunc decides whether a new device may be bound given the number of
// devices already bound to the license. A non-nil error rejects the binding.
type AdmitFunc func(bound int) error

// Bind refreshes an existing binding, or inserts a new one when admit allows
// it. The existence check, the count and the insert run in one transaction,
// so concurrent binds for the same license cannot overshoot the quota.
func (r *DeviceRepository) Bind(licenseID int64, fingerprint string, hardwareInfo []byte, now time.Time, admit AdmitFunc) (created bool, err error) {
	now = now.UTC()
	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prev, found, err := lastSeenTx(tx, licenseID, fingerprint)
	if err != nil {
		return false, err
	}

	if found {
		_, err = tx.Exec(`
			UPDATE devices SET last_seen = ?, hardware_info = ?
			WHERE license_id = ? AND fingerprint = ?
		`, advance(prev, now), nullBytes(hardwareInfo), licenseID, fingerprint)
		if err != nil {
			return false, fmt.Errorf("failed to refresh device: %w", err)
		}
		return false, commit(tx)
	}

	var bound int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM devices WHERE license_id = ?`, licenseID).Scan(&bound); err != nil {
		return false, fmt.Errorf("failed to count devices: %w", err)
	}

	if err := admit(bound); err != nil {
		return false, err
	}

	_, err = tx.Exec(`
		INSERT INTO devices (license_id, fingerprint, hardware_info, last_seen, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, licenseID, fingerprint, nullBytes(hardwareInfo), now, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert device: %w", err)
	}

	return true, commit(tx)
}

// Heartbeat advances last_seen of a bound device. It returns ErrNotFound when
// the fingerprint was never bound to the license.
func (r *DeviceRepository) Heartbeat(licenseID int64, fingerprint string, now time.Time) (time.Time, error) {
	now = now.UTC()
	tx, err := r.db.Begin()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prev, found, err := lastSeenTx(tx, licenseID, fingerprint)
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return time.Time{}, fmt.Errorf("device %q on license %d: %w", fingerprint, licenseID, ErrNotFound)
	}

	next := advance(prev, now)
	_, err = tx.Exec(`UPDATE devices SET last_seen = ? WHERE license_id = ? AND fingerprint = ?`, next, licenseID, fingerprint)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to update heartbeat: %w", err)
	}

	return next, commit(tx)
}

// ListByLicense lists the devices bound to a license, most recently seen first
func (r *DeviceRepository) ListByLicense(licenseID int64) ([]*models.Device, error) {
	query := `
		SELECT id, license_id, fingerprint, hardware_info, last_seen, created_at
		FROM devices
		WHERE license_id = ?
		ORDER BY last_seen DESC, id DESC
	`

	rows, err := r.db.Query(query, licenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device := &models.Device{}
		var hardwareInfo sql.NullString

		err := rows.Scan(
			&device.ID,
			&device.LicenseID,
			&device.Fingerprint,
			&hardwareInfo,
			&device.LastSeen,
			&device.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}

		if hardwareInfo.Valid && hardwareInfo.String != "" {
			device.HardwareInfo = []byte(hardwareInfo.String)
		}

		devices = append(devices, device)
	}

	return devices, rows.Err()
}

// CountByLicense counts the devices bound to a license
func (r *DeviceRepository) CountByLicense(licenseID int64) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM devices WHERE license_id = ?`, licenseID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return count, nil
}

// Delete removes a single device binding
func (r *DeviceRepository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}

	return requireAffected(result, "device", id)
}

func lastSeenTx(tx *sql.Tx, licenseID int64, fingerprint string) (time.Time, bool, error) {
	var lastSeen time.Time
	err := tx.QueryRow(`
		SELECT last_seen FROM devices WHERE license_id = ? AND fingerprint = ?
	`, licenseID, fingerprint).Scan(&lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to look up device: %w", err)
	}
	return lastSeen, true, nil
}

// advance returns now, or a value just past prev when the clock has not moved
// forward, so last_seen never stands still or goes backwards.
func advance(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}

func nullBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

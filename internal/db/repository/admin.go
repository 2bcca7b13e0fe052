package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adamscao/licenseserver/internal/models"
)

// AdminRepository handles administrator account data access
type AdminRepository struct {
	db *sql.DB
}

// NewAdminRepository creates a new admin repository
func NewAdminRepository(db *sql.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// Upsert creates the account, or replaces the credentials of an existing
// account with the same username. It reports whether a new row was created.
func (r *AdminRepository) Upsert(user *models.AdminUser) (bool, error) {
	now := time.Now().UTC()

	existing, err := r.GetByUsername(user.Username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}

	if existing != nil {
		_, err := r.db.Exec(`
			UPDATE admin_users SET password_hash = ?, totp_secret = ?, updated_at = ?
			WHERE id = ?
		`, user.PasswordHash, user.TOTPSecret, now, existing.ID)
		if err != nil {
			return false, fmt.Errorf("failed to update admin user: %w", err)
		}
		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
		user.UpdatedAt = now
		return false, nil
	}

	result, err := r.db.Exec(`
		INSERT INTO admin_users (username, password_hash, totp_secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.Username, user.PasswordHash, user.TOTPSecret, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to create admin user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get last insert id: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now

	return true, nil
}

// GetByUsername retrieves an admin user by username
func (r *AdminRepository) GetByUsername(username string) (*models.AdminUser, error) {
	query := `
		SELECT id, username, password_hash, totp_secret, created_at, updated_at
		FROM admin_users
		WHERE username = ?
	`

	user := &models.AdminUser{}
	err := r.db.QueryRow(query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.TOTPSecret,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("admin user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin user: %w", err)
	}

	return user, nil
}

// List lists all admin users
func (r *AdminRepository) List() ([]*models.AdminUser, error) {
	rows, err := r.db.Query(`
		SELECT id, username, password_hash, totp_secret, created_at, updated_at
		FROM admin_users
		ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list admin users: %w", err)
	}
	defer rows.Close()

	var users []*models.AdminUser
	for rows.Next() {
		user := &models.AdminUser{}
		err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.PasswordHash,
			&user.TOTPSecret,
			&user.CreatedAt,
			&user.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan admin user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Delete deletes an admin user by username
func (r *AdminRepository) Delete(username string) error {
	result, err := r.db.Exec(`DELETE FROM admin_users WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("failed to delete admin user: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("admin user %q: %w", username, ErrNotFound)
	}

	return nil
}

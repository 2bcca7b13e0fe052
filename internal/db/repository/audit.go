package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/adamscao/licenseserver/internal/models"
)

// AuditRepository handles audit log data access
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (action, details, ip_address, created_at)
		VALUES (?, ?, ?, ?)
	`

	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.Exec(query,
		log.Action,
		nullBytes(log.Details),
		log.IPAddress,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	log.ID = id

	return nil
}

// List lists audit logs newest first, optionally filtered by action
func (r *AuditRepository) List(action string, limit, offset int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, action, details, ip_address, created_at
		FROM audit_logs
		WHERE 1=1
	`
	args := []interface{}{}

	if action != "" {
		query += " AND action = ?"
		args = append(args, action)
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog

	for rows.Next() {
		log := &models.AuditLog{}
		var details sql.NullString

		err := rows.Scan(
			&log.ID,
			&log.Action,
			&details,
			&log.IPAddress,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if details.Valid && details.String != "" {
			log.Details = []byte(details.String)
		}

		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// CountByAction counts audit logs by action type
func (r *AuditRepository) CountByAction(action string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM audit_logs WHERE action = ?`, action).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	return count, nil
}

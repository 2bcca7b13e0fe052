package license

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/adamscao/licenseserver/internal/metrics"
	"github.com/adamscao/licenseserver/internal/models"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// Details is the free-form payload of an audit entry. Expected keys per
// action:
//
//	validate_success   keyId, fingerprint, newDevice
//	validate_failed    reason, keyId (absent for invalid_key)
//	key_expired        keyId
//	key_created        keyId, note, maxDevices
//	key_updated        keyId, fields
//	key_deleted        keyId
//	key_status_changed keyId, oldStatus, newStatus
//	device_deleted     deviceId
//	admin_login        username
//	admin_login_failed username, reason
type Details map[string]any

// AuditFilter selects a page of audit entries
type AuditFilter struct {
	Action string
	Limit  int
	Offset int
}

// AuditLog appends security-relevant decisions to durable storage. Writes are
// best-effort: a failed write is logged and counted, never returned.
type AuditLog struct {
	store   AuditStore
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewAuditLog creates an audit log over store
func NewAuditLog(store AuditStore, logger *slog.Logger, m *metrics.Metrics, now func() time.Time) *AuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = utcNow
	}
	return &AuditLog{
		store:   store,
		logger:  logger.With("component", "audit"),
		metrics: m,
		now:     now,
	}
}

// Append records one entry
func (a *AuditLog) Append(action string, details Details, ip string) {
	entry := &models.AuditLog{
		Action:    action,
		IPAddress: ip,
		CreatedAt: a.now(),
	}

	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			a.logger.Error("audit details not serializable", "action", action, "error", err)
		} else {
			entry.Details = raw
		}
	}

	if err := a.store.Create(entry); err != nil {
		a.metrics.AuditFailure()
		a.logger.Error("audit log write failed", "action", action, "ip", ip, "error", err)
	}
}

// List returns a page of entries, newest first
func (a *AuditLog) List(filter AuditFilter) ([]*models.AuditLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	return a.store.List(filter.Action, limit, offset)
}

package models

import (
	"encoding/json"
	"time"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        int64           `json:"id"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details,omitempty"` // JSON object, schema depends on action
	IPAddress string          `json:"ip_address"`
	CreatedAt time.Time       `json:"created_at"`
}

// Audit action constants
const (
	ActionValidateSuccess  = "validate_success"
	ActionValidateFailed   = "validate_failed"
	ActionKeyExpired       = "key_expired"
	ActionKeyCreated       = "key_created"
	ActionKeyUpdated       = "key_updated"
	ActionKeyDeleted       = "key_deleted"
	ActionKeyStatusChanged = "key_status_changed"
	ActionDeviceDeleted    = "device_deleted"
	ActionAdminLogin       = "admin_login"
	ActionAdminLoginFailed = "admin_login_failed"
)

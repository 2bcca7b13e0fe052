package models

import (
	"encoding/json"
	"time"
)

// Device represents a hardware fingerprint bound to a license key
type Device struct {
	ID           int64           `json:"id"`
	LicenseID    int64           `json:"license_id"`
	Fingerprint  string          `json:"fingerprint"`
	HardwareInfo json.RawMessage `json:"hardware_info,omitempty"` // Opaque snapshot from the client
	LastSeen     time.Time       `json:"last_seen"`
	CreatedAt    time.Time       `json:"created_at"`
}

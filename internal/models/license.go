package models

import "time"

// LicenseKey represents an issued license key. Only the salted hash of the
// key is stored; the raw key is handed out once at creation.
type LicenseKey struct {
	ID          int64      `json:"id"`
	KeyHash     string     `json:"-"` // Never expose key hash
	Salt        string     `json:"-"`
	DisplayHint string     `json:"display_hint"`
	MaxDevices  int        `json:"max_devices"`
	Status      string     `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Note        string     `json:"note"`
	DeviceCount int        `json:"device_count"` // Populated by list queries only
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Expired reports whether the key has an expiry date that lies before now
func (k *LicenseKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// LicenseKeyUpdate carries a partial update; nil fields are left untouched
type LicenseKeyUpdate struct {
	MaxDevices  *int
	ExpiresAt   *time.Time
	ClearExpiry bool // removes any expiry; takes precedence over ExpiresAt
	Note        *string
	Status      *string
}

// Empty reports whether the update changes nothing
func (u LicenseKeyUpdate) Empty() bool {
	return u.MaxDevices == nil && u.ExpiresAt == nil && !u.ClearExpiry && u.Note == nil && u.Status == nil
}

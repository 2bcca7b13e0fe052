package license

import (
	"time"

	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/models"
)

// KeyStore persists license keys
type KeyStore interface {
	Create(key *models.LicenseKey) error
	GetByID(id int64) (*models.LicenseKey, error)
	List() ([]*models.LicenseKey, error)
	ListCredentials() ([]*models.LicenseKey, error)
	Update(id int64, update models.LicenseKeyUpdate, now time.Time) error
	UpdateStatus(id int64, status string, now time.Time) error
	MarkExpired(id int64, now time.Time) (bool, error)
	Touch(id int64, now time.Time) error
	Delete(id int64) error
}

// DeviceStore persists device bindings. Bind must run its existence check,
// admission and insert atomically.
type DeviceStore interface {
	Bind(licenseID int64, fingerprint string, hardwareInfo []byte, now time.Time, admit repository.AdmitFunc) (bool, error)
	Heartbeat(licenseID int64, fingerprint string, now time.Time) (time.Time, error)
	ListByLicense(licenseID int64) ([]*models.Device, error)
	Delete(id int64) error
}

// AuditStore persists audit entries
type AuditStore interface {
	Create(log *models.AuditLog) error
	List(action string, limit, offset int) ([]*models.AuditLog, error)
}

var (
	_ KeyStore    = (*repository.LicenseRepository)(nil)
	_ DeviceStore = (*repository.DeviceRepository)(nil)
	_ AuditStore  = (*repository.AuditRepository)(nil)
)

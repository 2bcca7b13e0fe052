package license

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/adamscao/licenseserver/internal/metrics"
	"github.com/adamscao/licenseserver/internal/models"
)

// Dependencies wires a Service
type Dependencies struct {
	Keys    KeyStore
	Devices DeviceStore
	Audit   AuditStore
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// StrictTransitions rejects status changes outside CanTransition
	StrictTransitions bool
	// Now defaults to time.Now in UTC
	Now func() time.Time
}

// Service is the entry point used by the API and the admin CLI
type Service struct {
	keys      KeyStore
	audit     *AuditLog
	binder    *DeviceBinder
	validator *Validator
	logger    *slog.Logger
	strict    bool
	now       func() time.Time
}

// NewService builds the audit log, binder and validator over deps
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = utcNow
	}

	audit := NewAuditLog(deps.Audit, logger, deps.Metrics, now)
	binder := NewDeviceBinder(deps.Devices, audit, logger, now)

	return &Service{
		keys:      deps.Keys,
		audit:     audit,
		binder:    binder,
		validator: NewValidator(deps.Keys, binder, audit, logger, deps.Metrics, now),
		logger:    logger.With("component", "license_service"),
		strict:    deps.StrictTransitions,
		now:       now,
	}
}

// Audit returns the audit log
func (s *Service) Audit() *AuditLog { return s.audit }

// Binder returns the device binder
func (s *Service) Binder() *DeviceBinder { return s.binder }

// Validator returns the validator
func (s *Service) Validator() *Validator { return s.validator }

// Validate runs a key validation
func (s *Service) Validate(req ValidateRequest) (*Result, error) {
	return s.validator.Validate(req)
}

// Heartbeat runs the session liveness check
func (s *Service) Heartbeat(licenseID int64, fingerprint, ip string) error {
	return s.validator.Heartbeat(licenseID, fingerprint, ip)
}

// CreateKeyOptions configures a new key
type CreateKeyOptions struct {
	MaxDevices int // 0 means 1
	ExpiresAt  *time.Time
	Note       string
}

// CreatedKey carries the raw key, which exists only in this value
type CreatedKey struct {
	RawKey string
	Key    *models.LicenseKey
}

// CreateKey issues a new key and stores its salted hash
func (s *Service) CreateKey(opts CreateKeyOptions, ip string) (*CreatedKey, error) {
	maxDevices := opts.MaxDevices
	if maxDevices == 0 {
		maxDevices = 1
	}
	if maxDevices < 1 {
		return nil, fmt.Errorf("%w: max devices must be at least 1", ErrInputInvalid)
	}

	rawKey, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if opts.ExpiresAt != nil {
		t := opts.ExpiresAt.UTC()
		expiresAt = &t
	}

	key := &models.LicenseKey{
		KeyHash:     HashKey(rawKey, salt),
		Salt:        salt,
		DisplayHint: DisplayHint(rawKey),
		MaxDevices:  maxDevices,
		Status:      string(StatusActive),
		ExpiresAt:   expiresAt,
		Note:        opts.Note,
		CreatedAt:   s.now(),
	}
	if err := s.keys.Create(key); err != nil {
		return nil, err
	}

	s.audit.Append(models.ActionKeyCreated, Details{
		"keyId":      key.ID,
		"note":       key.Note,
		"maxDevices": key.MaxDevices,
	}, ip)
	s.logger.Info("license key created", "license_id", key.ID, "hint", key.DisplayHint, "max_devices", key.MaxDevices)

	return &CreatedKey{RawKey: rawKey, Key: key}, nil
}

// GetKey returns a key by id
func (s *Service) GetKey(id int64) (*models.LicenseKey, error) {
	return s.keys.GetByID(id)
}

// ListKeys returns every key with its device count, newest first
func (s *Service) ListKeys() ([]*models.LicenseKey, error) {
	return s.keys.List()
}

// KeyUpdate is a partial admin update; nil fields are unchanged
type KeyUpdate struct {
	MaxDevices  *int
	ExpiresAt   *time.Time
	ClearExpiry bool
	Note        *string
	Status      *string
}

// UpdateKey applies a partial update. Lowering MaxDevices never unbinds
// devices; bound devices keep refreshing while no new ones are admitted.
func (s *Service) UpdateKey(id int64, update KeyUpdate, ip string) error {
	if update.MaxDevices == nil && update.ExpiresAt == nil && !update.ClearExpiry && update.Note == nil && update.Status == nil {
		return fmt.Errorf("%w: no fields to update", ErrInputInvalid)
	}
	if update.MaxDevices != nil && *update.MaxDevices < 1 {
		return fmt.Errorf("%w: max devices must be at least 1", ErrInputInvalid)
	}

	current, err := s.keys.GetByID(id)
	if err != nil {
		return err
	}

	var fields []string
	change := models.LicenseKeyUpdate{
		MaxDevices:  update.MaxDevices,
		ClearExpiry: update.ClearExpiry,
		Note:        update.Note,
	}
	if update.MaxDevices != nil {
		fields = append(fields, "maxDevices")
	}
	if update.ClearExpiry || update.ExpiresAt != nil {
		if update.ExpiresAt != nil {
			t := update.ExpiresAt.UTC()
			change.ExpiresAt = &t
		}
		fields = append(fields, "expiresAt")
	}
	if update.Note != nil {
		fields = append(fields, "note")
	}
	if update.Status != nil {
		status, err := s.checkTransition(Status(current.Status), *update.Status)
		if err != nil {
			return err
		}
		str := string(status)
		change.Status = &str
		fields = append(fields, "status")
	}

	if err := s.keys.Update(id, change, s.now()); err != nil {
		return err
	}

	s.audit.Append(models.ActionKeyUpdated, Details{"keyId": id, "fields": fields}, ip)
	return nil
}

// UpdateKeyStatus sets a key's status
func (s *Service) UpdateKeyStatus(id int64, status string, ip string) error {
	next, err := ParseStatus(status)
	if err != nil {
		return err
	}

	current, err := s.keys.GetByID(id)
	if err != nil {
		return err
	}

	if _, err := s.checkTransition(Status(current.Status), string(next)); err != nil {
		return err
	}

	if err := s.keys.UpdateStatus(id, string(next), s.now()); err != nil {
		return err
	}

	s.audit.Append(models.ActionKeyStatusChanged, Details{
		"keyId":     id,
		"oldStatus": current.Status,
		"newStatus": next,
	}, ip)
	s.logger.Info("license status changed", "license_id", id, "old_status", current.Status, "new_status", next)

	return nil
}

// DeleteKey removes a key together with all its devices
func (s *Service) DeleteKey(id int64, ip string) error {
	if err := s.keys.Delete(id); err != nil {
		return err
	}
	s.audit.Append(models.ActionKeyDeleted, Details{"keyId": id}, ip)
	s.logger.Info("license key deleted", "license_id", id)
	return nil
}

// ListDevices lists the devices of a license
func (s *Service) ListDevices(licenseID int64) ([]*models.Device, error) {
	return s.binder.ListDevices(licenseID)
}

// DeleteDevice unbinds one device
func (s *Service) DeleteDevice(deviceID int64, ip string) error {
	return s.binder.DeleteDevice(deviceID, ip)
}

// LogAudit appends an entry on behalf of a caller outside the core, such as
// the admin login handler
func (s *Service) LogAudit(action string, details Details, ip string) {
	s.audit.Append(action, details, ip)
}

// ListAudit returns a page of the audit log
func (s *Service) ListAudit(filter AuditFilter) ([]*models.AuditLog, error) {
	return s.audit.List(filter)
}

func (s *Service) checkTransition(from Status, to string) (Status, error) {
	next, err := ParseStatus(to)
	if err != nil {
		return "", err
	}
	if s.strict && !CanTransition(from, next) {
		return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
	}
	return next, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}

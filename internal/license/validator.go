package license

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adamscao/licenseserver/internal/metrics"
	"github.com/adamscao/licenseserver/internal/models"
)

// ValidateRequest is one client's attempt to use a key on a device
type ValidateRequest struct {
	RawKey       string
	Fingerprint  string
	HardwareInfo json.RawMessage
	RemoteAddr   string
}

// Result is the outcome of a validation. Business rejections are reported
// here rather than as errors.
type Result struct {
	Valid     bool
	LicenseID int64
	NewDevice bool
	// Rejection is nil when Valid is true
	Rejection error
}

// Reason returns the reason code of a rejected result
func (r *Result) Reason() string {
	return Reason(r.Rejection)
}

// Message returns the client-facing text of a rejected result
func (r *Result) Message() string {
	if r.Valid {
		return ""
	}
	return Message(r.Rejection)
}

// Validator is the central decision point: it finds the key, checks its
// status and expiry, and hands the device to the binder
type Validator struct {
	keys    KeyStore
	binder  *DeviceBinder
	audit   *AuditLog
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewValidator creates a validator
func NewValidator(keys KeyStore, binder *DeviceBinder, audit *AuditLog, logger *slog.Logger, m *metrics.Metrics, now func() time.Time) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = utcNow
	}
	return &Validator{
		keys:    keys,
		binder:  binder,
		audit:   audit,
		logger:  logger.With("component", "validator"),
		metrics: m,
		now:     now,
	}
}

// Validate decides whether req grants access. Input errors and storage
// failures are returned as errors; every other call yields a Result and
// exactly one audit entry.
func (v *Validator) Validate(req ValidateRequest) (*Result, error) {
	if strings.TrimSpace(req.RawKey) == "" || strings.TrimSpace(req.Fingerprint) == "" {
		return nil, fmt.Errorf("%w: key and fingerprint are required", ErrInputInvalid)
	}
	if _, err := normalizeHardwareInfo(req.HardwareInfo); err != nil {
		return nil, err
	}

	key, err := v.findKey(NormalizeKey(req.RawKey))
	if err != nil {
		return nil, err
	}

	if key == nil {
		return v.reject(ErrInvalidKey, models.ActionValidateFailed, Details{"reason": ReasonInvalidKey}, req.RemoteAddr), nil
	}

	status := Status(key.Status)
	if status != StatusActive {
		rejection := &KeyNotActiveError{Status: status}
		return v.reject(rejection, models.ActionValidateFailed, Details{"reason": Reason(rejection), "keyId": key.ID}, req.RemoteAddr), nil
	}

	now := v.now()
	if key.Expired(now) {
		if _, err := v.expire(key.ID, now); err != nil {
			return nil, err
		}
		return v.reject(ErrKeyExpired, models.ActionKeyExpired, Details{"keyId": key.ID}, req.RemoteAddr), nil
	}

	created, err := v.binder.BindOrRefresh(key.ID, req.Fingerprint, key.MaxDevices, req.HardwareInfo)
	if errors.Is(err, ErrDeviceLimitReached) {
		return v.reject(err, models.ActionValidateFailed, Details{"reason": ReasonMaxDevices, "keyId": key.ID}, req.RemoteAddr), nil
	}
	if err != nil {
		return nil, err
	}

	if err := v.keys.Touch(key.ID, now); err != nil {
		return nil, err
	}

	v.audit.Append(models.ActionValidateSuccess, Details{
		"keyId":       key.ID,
		"fingerprint": req.Fingerprint,
		"newDevice":   created,
	}, req.RemoteAddr)
	v.metrics.ValidationOutcome("success")

	return &Result{Valid: true, LicenseID: key.ID, NewDevice: created}, nil
}

// Heartbeat re-checks the key behind a live session and refreshes the
// device's last-seen time. Rejections are returned as errors. A device that
// is no longer bound yields ErrNotFound after the key checks have passed.
func (v *Validator) Heartbeat(licenseID int64, fingerprint, ip string) error {
	err := v.heartbeat(licenseID, fingerprint, ip)
	switch {
	case err == nil:
		v.metrics.HeartbeatOutcome("success")
	case errors.Is(err, ErrNotFound):
		v.metrics.HeartbeatOutcome("device_not_found")
	case IsRejection(err):
		v.metrics.HeartbeatOutcome(Reason(err))
	default:
		v.metrics.HeartbeatOutcome("error")
	}
	return err
}

func (v *Validator) heartbeat(licenseID int64, fingerprint, ip string) error {
	key, err := v.keys.GetByID(licenseID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: license %d no longer exists", ErrInvalidKey, licenseID)
	}
	if err != nil {
		return err
	}

	if status := Status(key.Status); status != StatusActive {
		return &KeyNotActiveError{Status: status}
	}

	now := v.now()
	if key.Expired(now) {
		transitioned, err := v.expire(key.ID, now)
		if err != nil {
			return err
		}
		if transitioned {
			v.audit.Append(models.ActionKeyExpired, Details{"keyId": key.ID}, ip)
		}
		return ErrKeyExpired
	}

	if _, err := v.binder.UpdateHeartbeat(licenseID, fingerprint); err != nil {
		if errors.Is(err, ErrNotFound) {
			v.logger.Warn("heartbeat for unbound device", "license_id", licenseID, "fingerprint", fingerprint)
		}
		return err
	}

	return nil
}

// findKey scans every stored key for one whose hash matches. Each key has its
// own salt, so the candidate must be hashed once per row. First match wins.
func (v *Validator) findKey(normalized string) (*models.LicenseKey, error) {
	keys, err := v.keys.ListCredentials()
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if MatchKey(normalized, k.Salt, k.KeyHash) {
			return k, nil
		}
	}
	return nil, nil
}

// expire applies the lazy active -> expired transition
func (v *Validator) expire(id int64, now time.Time) (bool, error) {
	transitioned, err := v.keys.MarkExpired(id, now)
	if err != nil {
		return false, err
	}
	if transitioned {
		v.logger.Info("license key expired", "license_id", id)
	}
	return transitioned, nil
}

func (v *Validator) reject(rejection error, action string, details Details, ip string) *Result {
	v.audit.Append(action, details, ip)
	v.metrics.ValidationOutcome(Reason(rejection))
	v.logger.Info("license validation rejected", "reason", Reason(rejection), "ip", ip)
	return &Result{Rejection: rejection}
}

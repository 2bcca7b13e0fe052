package license

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/adamscao/licenseserver/internal/models"
)

// DeviceBinder ties fingerprints to licenses and enforces the per-license
// device quota
type DeviceBinder struct {
	devices DeviceStore
	audit   *AuditLog
	logger  *slog.Logger
	now     func() time.Time
}

// NewDeviceBinder creates a binder over devices
func NewDeviceBinder(devices DeviceStore, audit *AuditLog, logger *slog.Logger, now func() time.Time) *DeviceBinder {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = utcNow
	}
	return &DeviceBinder{
		devices: devices,
		audit:   audit,
		logger:  logger.With("component", "device_binder"),
		now:     now,
	}
}

// BindOrRefresh binds fingerprint to the license, or refreshes the snapshot
// and last-seen time if it is already bound. An already bound device is
// always refreshed, even if the license is over quota after its limit was
// lowered. A new device is admitted only while fewer than maxDevices are
// bound. It reports whether a new binding was created.
func (b *DeviceBinder) BindOrRefresh(licenseID int64, fingerprint string, maxDevices int, hardwareInfo json.RawMessage) (bool, error) {
	if fingerprint == "" {
		return false, fmt.Errorf("%w: fingerprint is required", ErrInputInvalid)
	}

	snapshot, err := normalizeHardwareInfo(hardwareInfo)
	if err != nil {
		return false, err
	}

	created, err := b.devices.Bind(licenseID, fingerprint, snapshot, b.now(), func(bound int) error {
		if bound >= maxDevices {
			return &DeviceLimitError{Max: maxDevices}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if created {
		b.logger.Info("device bound", "license_id", licenseID, "fingerprint", fingerprint)
	}

	return created, nil
}

// UpdateHeartbeat advances last_seen of a bound device without touching its
// snapshot or checking the quota. It returns ErrNotFound, changing nothing,
// if the fingerprint was never bound to the license.
func (b *DeviceBinder) UpdateHeartbeat(licenseID int64, fingerprint string) (time.Time, error) {
	return b.devices.Heartbeat(licenseID, fingerprint, b.now())
}

// ListDevices lists the devices bound to a license, most recently seen first
func (b *DeviceBinder) ListDevices(licenseID int64) ([]*models.Device, error) {
	return b.devices.ListByLicense(licenseID)
}

// DeleteDevice unbinds a device, freeing its slot
func (b *DeviceBinder) DeleteDevice(deviceID int64, ip string) error {
	if err := b.devices.Delete(deviceID); err != nil {
		return err
	}
	b.audit.Append(models.ActionDeviceDeleted, Details{"deviceId": deviceID}, ip)
	return nil
}

// normalizeHardwareInfo defaults a missing snapshot to an empty object and
// rejects anything that is not a JSON object
func normalizeHardwareInfo(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []byte("{}"), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: hardware info must be a JSON object", ErrInputInvalid)
	}
	return raw, nil
}

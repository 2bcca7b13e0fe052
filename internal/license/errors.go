package license

import (
	"errors"
	"fmt"

	"github.com/adamscao/licenseserver/internal/db/repository"
)

var (
	// ErrInputInvalid marks malformed or missing input
	ErrInputInvalid = errors.New("invalid input")
	// ErrInvalidKey means no stored key matches the presented one
	ErrInvalidKey = errors.New("invalid license key")
	// ErrKeyNotActive is wrapped by *KeyNotActiveError
	ErrKeyNotActive = errors.New("license key not active")
	// ErrKeyExpired means the key's expiry date has passed
	ErrKeyExpired = errors.New("license key expired")
	// ErrDeviceLimitReached is wrapped by *DeviceLimitError
	ErrDeviceLimitReached = errors.New("device limit reached")
	// ErrNotFound is the storage layer's not-found error, so errors.Is works
	// on errors coming straight from the repositories
	ErrNotFound = repository.ErrNotFound
	// ErrInvalidTransition rejects a status change outside the lifecycle
	// graph when strict transitions are enabled
	ErrInvalidTransition = errors.New("invalid status transition")
)

// KeyNotActiveError reports the status of a key that is not active
type KeyNotActiveError struct {
	Status Status
}

func (e *KeyNotActiveError) Error() string {
	return fmt.Sprintf("license key is %s", e.Status)
}

func (e *KeyNotActiveError) Unwrap() error {
	return ErrKeyNotActive
}

// DeviceLimitError reports the quota that a new device would exceed
type DeviceLimitError struct {
	Max int
}

func (e *DeviceLimitError) Error() string {
	return fmt.Sprintf("device limit reached (%d)", e.Max)
}

func (e *DeviceLimitError) Unwrap() error {
	return ErrDeviceLimitReached
}

// Rejection reason codes, also used as audit reasons and metric labels
const (
	ReasonInvalidKey = "invalid_key"
	ReasonExpired    = "key_expired"
	ReasonMaxDevices = "max_devices"
)

// Reason maps a rejection to its stable reason code. It returns "" for nil
// and for errors that are not business rejections.
func Reason(err error) string {
	var notActive *KeyNotActiveError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notActive):
		return "key_" + string(notActive.Status)
	case errors.Is(err, ErrKeyExpired):
		return ReasonExpired
	case errors.Is(err, ErrDeviceLimitReached):
		return ReasonMaxDevices
	case errors.Is(err, ErrInvalidKey):
		return ReasonInvalidKey
	}
	return ""
}

// IsRejection reports whether err is a business-rule rejection rather than
// an input or internal failure
func IsRejection(err error) bool {
	return Reason(err) != ""
}

// Message returns the human-readable text shown to a client for a rejection
func Message(err error) string {
	var notActive *KeyNotActiveError
	var limit *DeviceLimitError
	switch {
	case errors.As(err, &notActive):
		switch notActive.Status {
		case StatusSuspended:
			return "License suspended."
		case StatusRevoked:
			return "License revoked."
		case StatusExpired:
			return "License expired."
		}
		return "License is not active."
	case errors.Is(err, ErrKeyExpired):
		return "The license has expired."
	case errors.As(err, &limit):
		return fmt.Sprintf("Device limit reached (%d).", limit.Max)
	case errors.Is(err, ErrInvalidKey):
		return "Invalid license key."
	}
	return "License validation failed."
}

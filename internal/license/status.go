package license

import "fmt"

// Status is the lifecycle state of a license key
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
	StatusExpired   Status = "expired"
)

// Statuses lists every known status
func Statuses() []Status {
	return []Status{StatusActive, StatusSuspended, StatusRevoked, StatusExpired}
}

// ParseStatus accepts exactly the known status names
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInputInvalid, s)
	}
	return status, nil
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether moving from one status to another follows the
// intended lifecycle:
//
//	active    -> suspended, revoked, expired
//	suspended -> active, revoked
//	revoked, expired: terminal
//
// Setting a status to its current value is always allowed. The graph is only
// enforced when strict transitions are configured; otherwise admins may set
// any known status.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case StatusActive:
		return to == StatusSuspended || to == StatusRevoked || to == StatusExpired
	case StatusSuspended:
		return to == StatusActive || to == StatusRevoked
	}
	return false
}

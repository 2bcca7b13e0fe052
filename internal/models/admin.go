package models

import "time"

// AdminUser represents an administrator account
type AdminUser struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose password hash in JSON
	TOTPSecret   string    `json:"-"` // Never expose TOTP secret in JSON
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TOTPEnabled reports whether the account requires a second factor
func (u *AdminUser) TOTPEnabled() bool {
	return u.TOTPSecret != ""
}

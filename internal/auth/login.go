package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/models"
)

var (
	// ErrInvalidCredentials covers unknown users and wrong passwords alike
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTOTPRequired means the password was right but no code was given
	ErrTOTPRequired = errors.New("TOTP code required")
)

// AdminStore looks up administrator accounts
type AdminStore interface {
	GetByUsername(username string) (*models.AdminUser, error)
}

// Auditor records login decisions
type Auditor interface {
	LogAudit(action string, details license.Details, ip string)
}

// LoginResult is a successful admin login
type LoginResult struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// Authenticator checks admin credentials and issues admin sessions
type Authenticator struct {
	admins   AdminStore
	sessions *SessionIssuer
	audit    Auditor
	logger   *slog.Logger
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(admins AdminStore, sessions *SessionIssuer, audit Auditor, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		admins:   admins,
		sessions: sessions,
		audit:    audit,
		logger:   logger.With("component", "auth"),
	}
}

// Login verifies the password and, for accounts with a TOTP secret, the
// one-time code
func (a *Authenticator) Login(username, password, totpCode, ip string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", license.ErrInputInvalid)
	}

	user, err := a.admins.GetByUsername(username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, a.fail(username, "unknown_user", ip, ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}

	if !VerifyPassword(user.PasswordHash, password) {
		return nil, a.fail(username, "bad_password", ip, ErrInvalidCredentials)
	}

	if user.TOTPEnabled() {
		if strings.TrimSpace(totpCode) == "" {
			return nil, a.fail(username, "totp_required", ip, ErrTOTPRequired)
		}
		if !ValidateTOTP(user.TOTPSecret, totpCode) {
			return nil, a.fail(username, "bad_totp", ip, ErrInvalidCredentials)
		}
	}

	token, expiresAt, err := a.sessions.IssueAdmin(user.ID, user.Username)
	if err != nil {
		return nil, err
	}

	a.audit.LogAudit(models.ActionAdminLogin, license.Details{"username": user.Username}, ip)
	a.logger.Info("admin logged in", "username", user.Username, "ip", ip)

	return &LoginResult{Token: token, Username: user.Username, ExpiresAt: expiresAt}, nil
}

func (a *Authenticator) fail(username, reason, ip string, err error) error {
	a.audit.LogAudit(models.ActionAdminLoginFailed, license.Details{"username": username, "reason": reason}, ip)
	a.logger.Warn("admin login failed", "username", username, "reason", reason, "ip", ip)
	return err
}

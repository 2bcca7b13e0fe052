package auth

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/models"
)

type fakeAdmins map[string]*models.AdminUser

func (f fakeAdmins) GetByUsername(username string) (*models.AdminUser, error) {
	user, ok := f[username]
	if !ok {
		return nil, fmt.Errorf("admin %q: %w", username, repository.ErrNotFound)
	}
	return user, nil
}

type auditEntry struct {
	action  string
	details license.Details
	ip      string
}

type recordingAuditor struct {
	entries []auditEntry
}

func (r *recordingAuditor) LogAudit(action string, details license.Details, ip string) {
	r.entries = append(r.entries, auditEntry{action, details, ip})
}

func newAuthenticator(t *testing.T, totpSecret string) (*Authenticator, *recordingAuditor) {
	t.Helper()
	hash, err := HashPassword("s3cret!", 4)
	require.NoError(t, err)

	admins := fakeAdmins{
		"root": {ID: 1, Username: "root", PasswordHash: hash, TOTPSecret: totpSecret},
	}
	audit := &recordingAuditor{}
	return NewAuthenticator(admins, newIssuer(t), audit, nil), audit
}

func TestLogin_Success(t *testing.T) {
	authn, audit := newAuthenticator(t, "")

	result, err := authn.Login(" root ", "s3cret!", "", "10.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, "root", result.Username)
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.ActionAdminLogin, audit.entries[0].action)
	assert.Equal(t, "10.1.1.1", audit.entries[0].ip)
}

func TestLogin_Failures(t *testing.T) {
	secret, _, err := GenerateTOTPSecret("root", "")
	require.NoError(t, err)

	tests := []struct {
		name       string
		totp       string
		user, pass string
		code       string
		wantErr    error
		wantReason string
	}{
		{"unknown user", "", "ghost", "s3cret!", "", ErrInvalidCredentials, "unknown_user"},
		{"bad password", "", "root", "nope", "", ErrInvalidCredentials, "bad_password"},
		{"totp missing", secret, "root", "s3cret!", "", ErrTOTPRequired, "totp_required"},
		{"totp wrong", secret, "root", "s3cret!", "12345", ErrInvalidCredentials, "bad_totp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authn, audit := newAuthenticator(t, tt.totp)

			_, err := authn.Login(tt.user, tt.pass, tt.code, "10.0.0.9")
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			require.Len(t, audit.entries, 1)
			assert.Equal(t, models.ActionAdminLoginFailed, audit.entries[0].action)
			assert.Equal(t, tt.wantReason, audit.entries[0].details["reason"])
		})
	}
}

func TestLogin_WithTOTP(t *testing.T) {
	secret, _, err := GenerateTOTPSecret("root", "")
	require.NoError(t, err)
	authn, _ := newAuthenticator(t, secret)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	result, err := authn.Login("root", "s3cret!", code, "10.0.0.9")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestLogin_MissingInputNotAudited(t *testing.T) {
	authn, audit := newAuthenticator(t, "")

	_, err := authn.Login("", "x", "", "ip")
	assert.True(t, errors.Is(err, license.ErrInputInvalid))
	_, err = authn.Login("root", "", "", "ip")
	assert.True(t, errors.Is(err, license.ErrInputInvalid))
	assert.Empty(t, audit.entries)
}

package auth

import (
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"
)

const (
	totpIssuer = "LicenseServer"
)

// GenerateTOTPSecret generates a new TOTP secret for an admin account and
// returns it together with its otpauth:// provisioning URL
func GenerateTOTPSecret(username, issuer string) (secret, url string, err error) {
	if issuer == "" {
		issuer = totpIssuer
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: username,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return key.Secret(), key.URL(), nil
}

// ValidateTOTP validates a TOTP code against a secret.
// totp.Validate allows one period of clock skew either way.
func ValidateTOTP(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	return totp.Validate(code, secret)
}

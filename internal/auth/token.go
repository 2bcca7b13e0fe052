package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session roles
const (
	RoleAdmin   = "admin"
	RoleLicense = "license"
)

const minSecretLength = 16

// ErrInvalidSession is returned for any token that fails to parse or verify
var ErrInvalidSession = errors.New("invalid session token")

// Claims is the payload of a session token. License sessions carry
// LicenseID and Fingerprint, admin sessions carry AdminID and Username.
type Claims struct {
	Role        string `json:"role"`
	LicenseID   int64  `json:"license_id,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	AdminID     int64  `json:"admin_id,omitempty"`
	Username    string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// SessionIssuer signs and verifies HS256 session tokens
type SessionIssuer struct {
	secret     []byte
	issuer     string
	licenseTTL time.Duration
	adminTTL   time.Duration
	now        func() time.Time
}

// NewSessionIssuer creates an issuer. The secret must be at least 16 bytes.
func NewSessionIssuer(secret, issuer string, licenseTTL, adminTTL time.Duration) (*SessionIssuer, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d characters", minSecretLength)
	}
	if licenseTTL <= 0 || adminTTL <= 0 {
		return nil, errors.New("session lifetimes must be positive")
	}
	return &SessionIssuer{
		secret:     []byte(secret),
		issuer:     issuer,
		licenseTTL: licenseTTL,
		adminTTL:   adminTTL,
		now:        time.Now,
	}, nil
}

// SetClock replaces the issuer's time source
func (s *SessionIssuer) SetClock(now func() time.Time) {
	s.now = now
}

// IssueLicense signs a session for a validated key on one device
func (s *SessionIssuer) IssueLicense(licenseID int64, fingerprint string) (string, time.Time, error) {
	return s.issue(Claims{
		Role:        RoleLicense,
		LicenseID:   licenseID,
		Fingerprint: fingerprint,
	}, fmt.Sprintf("license:%d", licenseID), s.licenseTTL)
}

// IssueAdmin signs a session for an authenticated administrator
func (s *SessionIssuer) IssueAdmin(adminID int64, username string) (string, time.Time, error) {
	return s.issue(Claims{
		Role:     RoleAdmin,
		AdminID:  adminID,
		Username: username,
	}, fmt.Sprintf("admin:%d", adminID), s.adminTTL)
}

func (s *SessionIssuer) issue(claims Claims, subject string, ttl time.Duration) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, expiresAt, nil
}

// Parse verifies a token's signature, issuer and expiry and returns its claims
func (s *SessionIssuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidSession
	}

	switch claims.Role {
	case RoleLicense:
		if claims.LicenseID <= 0 || claims.Fingerprint == "" {
			return nil, fmt.Errorf("%w: incomplete license claims", ErrInvalidSession)
		}
	case RoleAdmin:
		if claims.Username == "" {
			return nil, fmt.Errorf("%w: incomplete admin claims", ErrInvalidSession)
		}
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidSession, claims.Role)
	}

	return claims, nil
}

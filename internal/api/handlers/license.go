package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/adamscao/licenseserver/internal/api/middleware"
	"github.com/adamscao/licenseserver/internal/auth"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/gin-gonic/gin"
)

// LicenseHandler serves the client-facing license endpoints
type LicenseHandler struct {
	service  *license.Service
	sessions *auth.SessionIssuer
	logger   *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service *license.Service, sessions *auth.SessionIssuer, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:  service,
		sessions: sessions,
		logger:   logger.With("component", "license_handler"),
	}
}

// ValidateRequest represents a license validation request
type ValidateRequest struct {
	Key          string          `json:"key"`
	Fingerprint  string          `json:"fingerprint"`
	HardwareInfo json.RawMessage `json:"hardware_info,omitempty"`
}

// ValidateResponse is returned for both granted and rejected validations
type ValidateResponse struct {
	Valid     bool       `json:"valid"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Validate checks a key and binds the device
// POST /api/license/validate
func (h *LicenseHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.service.Validate(license.ValidateRequest{
		RawKey:       req.Key,
		Fingerprint:  req.Fingerprint,
		HardwareInfo: req.HardwareInfo,
		RemoteAddr:   GetClientIP(c),
	})
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	if !result.Valid {
		c.JSON(http.StatusForbidden, ValidateResponse{
			Valid:   false,
			Reason:  result.Reason(),
			Message: result.Message(),
		})
		return
	}

	token, expiresAt, err := h.sessions.IssueLicense(result.LicenseID, req.Fingerprint)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ValidateResponse{
		Valid:     true,
		Token:     token,
		ExpiresAt: &expiresAt,
	})
}

// Heartbeat re-checks the key behind a license session
// POST /api/license/heartbeat
func (h *LicenseHandler) Heartbeat(c *gin.Context) {
	session := middleware.Session(c)

	err := h.service.Heartbeat(session.LicenseID, session.Fingerprint, GetClientIP(c))
	switch {
	case err == nil:
	case errors.Is(err, license.ErrNotFound):
		// The device was unbound by an administrator; the key itself is
		// still good, so the session stays valid until it expires.
	case license.IsRejection(err):
		c.JSON(http.StatusForbidden, ValidateResponse{
			Valid:   false,
			Reason:  license.Reason(err),
			Message: license.Message(err),
		})
		return
	default:
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ValidateResponse{Valid: true})
}

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/adamscao/licenseserver/internal/auth"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/models"
	"github.com/gin-gonic/gin"
)

// AdminHandler handles administrative operations
type AdminHandler struct {
	service       *license.Service
	authenticator *auth.Authenticator
	logger        *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service *license.Service, authenticator *auth.Authenticator, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service:       service,
		authenticator: authenticator,
		logger:        logger.With("component", "admin_handler"),
	}
}

// LoginRequest represents an admin login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

// LoginResponse represents an admin login response
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login authenticates an administrator
// POST /api/admin/login
func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := h.authenticator.Login(req.Username, req.Password, req.TOTPCode, GetClientIP(c))
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		RespondError(c, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
		return
	case errors.Is(err, auth.ErrTOTPRequired):
		RespondError(c, http.StatusUnauthorized, "totp_required", "TOTP code required")
		return
	default:
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     result.Token,
		Username:  result.Username,
		ExpiresAt: result.ExpiresAt,
	})
}

// ListKeys lists every license key
// GET /api/admin/keys
func (h *AdminHandler) ListKeys(c *gin.Context) {
	keys, err := h.service.ListKeys()
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	if keys == nil {
		keys = []*models.LicenseKey{}
	}
	RespondSuccess(c, keys)
}

// CreateKeyRequest represents a key creation request
type CreateKeyRequest struct {
	MaxDevices int    `json:"max_devices"`
	ExpiresAt  string `json:"expires_at"`
	Note       string `json:"note"`
}

// CreateKeyResponse carries the raw key, shown only this once
type CreateKeyResponse struct {
	Key     string             `json:"key"`
	License *models.LicenseKey `json:"license"`
	Message string             `json:"message"`
}

// CreateKey issues a new license key
// POST /api/admin/keys
func (h *AdminHandler) CreateKey(c *gin.Context) {
	var req CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	opts := license.CreateKeyOptions{
		MaxDevices: req.MaxDevices,
		Note:       req.Note,
	}
	if req.ExpiresAt != "" {
		t, err := ParseExpiry(req.ExpiresAt)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		opts.ExpiresAt = &t
	}

	created, err := h.service.CreateKey(opts, GetClientIP(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, CreateKeyResponse{
		Key:     created.RawKey,
		License: created.Key,
		Message: "Key created. Store it now, it cannot be recovered.",
	})
}

// GetKey returns one license key
// GET /api/admin/keys/:id
func (h *AdminHandler) GetKey(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	key, err := h.service.GetKey(id)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	RespondSuccess(c, key)
}

// UpdateKeyRequest represents a partial key update. expires_at may be null
// to clear the expiry.
type UpdateKeyRequest struct {
	MaxDevices *int            `json:"max_devices"`
	ExpiresAt  json.RawMessage `json:"expires_at"`
	Note       *string         `json:"note"`
	Status     *string         `json:"status"`
}

// UpdateKey applies a partial update to a key
// PUT /api/admin/keys/:id
func (h *AdminHandler) UpdateKey(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	update := license.KeyUpdate{
		MaxDevices: req.MaxDevices,
		Note:       req.Note,
		Status:     req.Status,
	}
	if len(req.ExpiresAt) > 0 {
		if string(req.ExpiresAt) == "null" {
			update.ClearExpiry = true
		} else {
			var raw string
			if err := json.Unmarshal(req.ExpiresAt, &raw); err != nil {
				RespondError(c, http.StatusBadRequest, "invalid_request", "expires_at must be a string or null")
				return
			}
			if raw == "" {
				update.ClearExpiry = true
			} else {
				t, err := ParseExpiry(raw)
				if err != nil {
					RespondError(c, http.StatusBadRequest, "invalid_request", err.Error())
					return
				}
				update.ExpiresAt = &t
			}
		}
	}

	if err := h.service.UpdateKey(id, update, GetClientIP(c)); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	RespondSuccess(c, MessageResponse{Message: "Key updated."})
}

// DeleteKey deletes a key and its devices
// DELETE /api/admin/keys/:id
func (h *AdminHandler) DeleteKey(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteKey(id, GetClientIP(c)); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	RespondSuccess(c, MessageResponse{Message: "Key deleted."})
}

// UpdateStatusRequest represents a status change
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus changes a key's status
// PUT /api/admin/keys/:id/status
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.service.UpdateKeyStatus(id, req.Status, GetClientIP(c)); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	RespondSuccess(c, MessageResponse{Message: "Status changed to " + req.Status + "."})
}

// ListDevices lists the devices bound to a key
// GET /api/admin/keys/:id/devices
func (h *AdminHandler) ListDevices(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	devices, err := h.service.ListDevices(id)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	if devices == nil {
		devices = []*models.Device{}
	}
	RespondSuccess(c, devices)
}

// DeleteDevice unbinds a device
// DELETE /api/admin/devices/:id
func (h *AdminHandler) DeleteDevice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteDevice(id, GetClientIP(c)); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	RespondSuccess(c, MessageResponse{Message: "Device deleted."})
}

// ListLogs returns a page of the audit log
// GET /api/admin/logs?action=&limit=&offset=
func (h *AdminHandler) ListLogs(c *gin.Context) {
	filter := license.AuditFilter{Action: c.Query("action")}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid offset")
			return
		}
		filter.Offset = n
	}

	logs, err := h.service.ListAudit(filter)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}
	RespondSuccess(c, logs)
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adamscao/licenseserver/internal/license"
	"github.com/gin-gonic/gin"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// MessageResponse acknowledges an admin action
type MessageResponse struct {
	Message string `json:"message"`
}

// RespondError sends an error response
func RespondError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// RespondErrorWithDetails sends an error response with details
func RespondErrorWithDetails(c *gin.Context, statusCode int, errorCode string, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// RespondSuccess sends a success response
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// GetClientIP returns the client address. Forwarding headers are honored only
// from the proxies configured on the engine.
func GetClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// respondServiceError maps core errors onto HTTP statuses. Anything not
// recognised is logged and reported as an internal error.
func respondServiceError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, license.ErrInputInvalid):
		RespondError(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, license.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, license.ErrInvalidTransition):
		RespondError(c, http.StatusConflict, "invalid_transition", err.Error())
	default:
		_ = c.Error(err)
		logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// parseID reads a positive integer path parameter
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid "+name)
		return 0, false
	}
	return id, true
}

// ParseExpiry accepts RFC 3339 timestamps or plain dates. A plain date
// expires at the end of that day, UTC.
func ParseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, errors.New("expiry must be an RFC 3339 timestamp or a YYYY-MM-DD date")
	}
	return d.Add(24*time.Hour - time.Second).UTC(), nil
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/adamscao/licenseserver/internal/auth"
	"github.com/gin-gonic/gin"
)

const sessionKey = "session"

// RequireRole checks the bearer session token and its role
func RequireRole(sessions *auth.SessionIssuer, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Token required",
			})
			return
		}

		claims, err := sessions.Parse(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
			return
		}

		if claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Access denied",
			})
			return
		}

		c.Set(sessionKey, claims)
		c.Next()
	}
}

// Session returns the claims stored by RequireRole
func Session(c *gin.Context) *auth.Claims {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

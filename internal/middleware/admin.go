package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// Package middleware provides the operator gate for the mutating PCR
// endpoints.

const devAdminKey = "admin-dev-key-change-in-production"

// AdminMiddleware provides admin authentication middleware
type AdminMiddleware struct {
	apiKey string
}

// NewAdminMiddleware creates the admin gate. An empty apiKey falls back to
// the ADMIN_API_KEY environment variable; in development a fixed key is
// used when neither is set. Outside development an unset key locks every
// admin endpoint.
func NewAdminMiddleware(apiKey, environment string) *AdminMiddleware {
	if apiKey == "" {
		apiKey = os.Getenv("ADMIN_API_KEY")
	}
	if apiKey == "" && (environment == "" || environment == "development") {
		apiKey = devAdminKey
	}

	return &AdminMiddleware{
		apiKey: apiKey,
	}
}

// RequireAdminAuth middleware validates admin API keys
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Authorization: Bearer <key>
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenParts := strings.SplitN(authHeader, " ", 2)
			if len(tokenParts) == 2 && tokenParts[0] == "Bearer" && am.ValidateAdminKey(tokenParts[1]) {
				c.Next()
				return
			}
		}

		if am.ValidateAdminKey(c.GetHeader("X-API-Key")) {
			c.Next()
			return
		}

		// Query parameter, for curl from the operator's shell
		if am.ValidateAdminKey(c.Query("api_key")) {
			c.Next()
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Valid admin API key required for this endpoint",
		})
		c.Abort()
	}
}

// ValidateAdminKey validates an admin API key
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	if am.apiKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(am.apiKey)) == 1
}

// Enabled reports whether any key is configured.
func (am *AdminMiddleware) Enabled() bool {
	return am.apiKey != ""
}

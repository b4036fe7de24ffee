// Package security provides security middleware for the governance API.
package security

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeadersMiddleware adds security headers to all responses
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Header("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		c.Header("X-Frame-Options", "DENY")

		// Referrer policy
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// API-only service: lock everything down, allow the audit feed socket
		c.Header("Content-Security-Policy", "default-src 'none'; connect-src 'self' ws: wss:; frame-ancestors 'none'")

		c.Next()
	}
}

// AdminAuthMiddleware authenticates control-plane requests against the
// configured admin secret via the X-Admin-Secret header. An empty configured
// secret disables the admin surface entirely.
func AdminAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "Admin API is not configured",
			})
			c.Abort()
			return
		}

		provided := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid admin secret",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

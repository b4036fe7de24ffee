// Package validation provides input validation middleware for the governor API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (64KB). Governance payloads
// are small; anything larger is malformed or hostile.
const MaxRequestSize = 64 << 10

// MaxIdentifierLength is the maximum length for session and fingerprint fields
const MaxIdentifierLength = 256

var (
	// sessionIDRegex validates client session identifiers
	sessionIDRegex = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
	// monthRegex validates ledger month keys (YYYY-MM)
	monthRegex = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidSessionID checks if a string is an acceptable session identifier
func IsValidSessionID(id string) bool {
	return sessionIDRegex.MatchString(id)
}

// IsValidMonth checks if a string is a valid ledger month key (YYYY-MM)
func IsValidMonth(s string) bool {
	return monthRegex.MatchString(s)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidSessionID checks if a field is an acceptable session identifier
func ValidSessionID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidSessionID(value) {
			return &ValidationError{Field: field, Message: "must be 1-128 characters from [A-Za-z0-9._:-]"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// MonthParamMiddleware validates the :month URL parameter on routes that use it.
// Apply to route groups that include :month params to reject malformed month
// keys early.
func MonthParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		month := c.Param("month")
		if month != "" && !IsValidMonth(month) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_month",
				"message": "month must be formatted as YYYY-MM",
			})
			return
		}
		c.Next()
	}
}

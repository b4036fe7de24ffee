package governance

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clauselens/governor/internal/validation"
)

// Handler provides HTTP endpoints for governance operations.
type Handler struct {
	service *Service
	sweeper *Sweeper
}

// NewHandler creates a new governance handler. The sweeper is optional; when
// present the admin surface can trigger maintenance on demand.
func NewHandler(service *Service, sweeper *Sweeper) *Handler {
	return &Handler{service: service, sweeper: sweeper}
}

// RegisterRoutes sets up the public admission routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/governance/check", h.Check)
	r.POST("/governance/usage", h.ReportUsage)
}

// RegisterAdminRoutes sets up admin-only governance routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/identities/flag", h.FlagIdentity)
	r.POST("/identities/clear", h.ClearIdentity)
	r.PATCH("/limits", h.UpdateLimits)
	r.GET("/limits", h.GetLimits)
	r.GET("/statistics", h.GetStatistics)
	r.POST("/sweep", h.TriggerSweep)
}

// Check handles POST /v1/governance/check
func (h *Handler) Check(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	if errs := validation.Validate(
		validation.Required("sessionId", req.SessionID),
		validation.ValidSessionID("sessionId", req.SessionID),
		validation.MaxLength("fingerprint", req.Fingerprint, validation.MaxIdentifierLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	req.Fingerprint = validation.SanitizeString(req.Fingerprint, validation.MaxIdentifierLength)
	if req.ClientIP == "" {
		req.ClientIP = c.ClientIP()
	}

	verdict := h.service.CanAnalyze(c.Request.Context(), req)
	c.JSON(http.StatusOK, verdict)
}

// ReportUsage handles POST /v1/governance/usage
func (h *Handler) ReportUsage(c *gin.Context) {
	var report UsageReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	if errs := validation.Validate(
		validation.Required("sessionId", report.SessionID),
		validation.ValidSessionID("sessionId", report.SessionID),
		validation.MaxLength("fingerprint", report.Fingerprint, validation.MaxIdentifierLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	report.Fingerprint = validation.SanitizeString(report.Fingerprint, validation.MaxIdentifierLength)
	if report.ClientIP == "" {
		report.ClientIP = c.ClientIP()
	}

	h.service.RecordUsage(c.Request.Context(), report)
	c.JSON(http.StatusAccepted, gin.H{"recorded": true})
}

type sessionActionRequest struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// FlagIdentity handles POST /v1/admin/identities/flag
func (h *Handler) FlagIdentity(c *gin.Context) {
	var req sessionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "sessionId is required",
		})
		return
	}
	if req.Reason == "" {
		req.Reason = "manual review"
	}

	count, err := h.service.FlagSuspicious(c.Request.Context(), req.SessionID, req.Reason)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No tracked identity for this session",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"flagged": count})
}

// ClearIdentity handles POST /v1/admin/identities/clear
func (h *Handler) ClearIdentity(c *gin.Context) {
	var req sessionActionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "sessionId is required",
		})
		return
	}

	count, err := h.service.ClearSuspicious(c.Request.Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No tracked identity for this session",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cleared": count})
}

// GetLimits handles GET /v1/admin/limits
func (h *Handler) GetLimits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"limits": h.service.Limits()})
}

// UpdateLimits handles PATCH /v1/admin/limits
func (h *Handler) UpdateLimits(c *gin.Context) {
	var update LimitsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	limits, err := h.service.UpdateLimits(update)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "invalid_limits",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"limits": limits})
}

// GetStatistics handles GET /v1/admin/statistics
func (h *Handler) GetStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Statistics())
}

// TriggerSweep handles POST /v1/admin/sweep
func (h *Handler) TriggerSweep(c *gin.Context) {
	if h.sweeper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "unavailable",
			"message": "Sweeper is not running",
		})
		return
	}
	identities, buckets := h.sweeper.RunOnce()
	c.JSON(http.StatusOK, gin.H{
		"identitiesEvicted": identities,
		"bucketsEvicted":    buckets,
	})
}

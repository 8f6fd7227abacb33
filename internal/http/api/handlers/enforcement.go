package handlers

import (
	"net/http"
	"strings"

	"github.com/costfence/costfence/internal/service"

	"github.com/gin-gonic/gin"
)

// EnforcementHandler serves pre-execution budget checks.
type EnforcementHandler struct {
	svc *service.Service
}

// NewEnforcementHandler constructs an enforcement handler.
func NewEnforcementHandler(svc *service.Service) *EnforcementHandler {
	return &EnforcementHandler{svc: svc}
}

// checkEnforcementRequest captures the payload for an enforcement check.
type checkEnforcementRequest struct {
	UserID              string `json:"user_id"`               // User to check.
	EstimatedCostMicros int64  `json:"estimated_cost_micros"` // Projected call cost.
	Provider            string `json:"provider"`              // Provider name.
	Model               string `json:"model"`                 // Model name.
	OrganizationID      string `json:"organization_id"`       // Optional organization scope.
}

// Check evaluates whether the user may spend the estimated amount.
func (h *EnforcementHandler) Check(c *gin.Context) {
	var body checkEnforcementRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	userID := strings.TrimSpace(body.UserID)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if body.EstimatedCostMicros < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "estimated_cost_micros must not be negative"})
		return
	}

	decision := h.svc.CheckEnforcement(c.Request.Context(), userID, body.EstimatedCostMicros,
		strings.TrimSpace(body.Provider), strings.TrimSpace(body.Model), strings.TrimSpace(body.OrganizationID))
	c.JSON(http.StatusOK, decision)
}

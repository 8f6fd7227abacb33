package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/costfence/costfence/internal/budget"
	"github.com/costfence/costfence/internal/models"
	"github.com/costfence/costfence/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// BudgetHandler manages budget limit and override endpoints.
type BudgetHandler struct {
	svc *service.Service
}

// NewBudgetHandler constructs a budget handler.
func NewBudgetHandler(svc *service.Service) *BudgetHandler {
	return &BudgetHandler{svc: svc}
}

// budgetLimitRequest captures the payload for creating or updating a limit.
type budgetLimitRequest struct {
	Name                 string               `json:"name"`                  // Display name.
	AmountMicros         int64                `json:"amount_micros"`         // Limit in micro-dollars.
	Period               string               `json:"period"`                // Budget period.
	ThresholdPercentages models.ThresholdList `json:"threshold_percentages"` // Alert thresholds.
	Actions              models.ActionMap     `json:"actions"`               // Threshold actions.
	AppliesTo            models.AppliesTo     `json:"applies_to"`            // Applicability scope.
	IsActive             *bool                `json:"is_active"`             // Required active flag.
}

func (body *budgetLimitRequest) params() (budget.CreateLimitParams, bool) {
	if body.IsActive == nil {
		return budget.CreateLimitParams{}, false
	}
	return budget.CreateLimitParams{
		Name:                 strings.TrimSpace(body.Name),
		AmountMicros:         body.AmountMicros,
		Period:               models.BudgetPeriod(strings.ToLower(strings.TrimSpace(body.Period))),
		ThresholdPercentages: body.ThresholdPercentages,
		Actions:              body.Actions,
		AppliesTo:            body.AppliesTo,
		IsActive:             *body.IsActive,
	}, true
}

// Create validates and inserts a budget limit.
func (h *BudgetHandler) Create(c *gin.Context) {
	var body budgetLimitRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	params, ok := body.params()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
		return
	}

	limit, errCreate := h.svc.CreateBudgetLimit(c.Request.Context(), params)
	if errCreate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errCreate.Error()})
		return
	}
	c.JSON(http.StatusCreated, h.formatLimit(limit))
}

// Update replaces a budget limit's configuration.
func (h *BudgetHandler) Update(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body budgetLimitRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	params, ok := body.params()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
		return
	}

	limit, errUpdate := h.svc.UpdateBudgetLimit(c.Request.Context(), id, params)
	if errUpdate != nil {
		if errors.Is(errUpdate, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errUpdate.Error()})
		return
	}
	c.JSON(http.StatusOK, h.formatLimit(limit))
}

// Get fetches a budget limit by ID.
func (h *BudgetHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	limit, errGet := h.svc.GetBudgetLimit(c.Request.Context(), id)
	if errGet != nil {
		if errors.Is(errGet, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatLimit(limit))
}

// List returns budget limits, optionally only active ones.
func (h *BudgetHandler) List(c *gin.Context) {
	onlyActive := false
	if activeQ := strings.TrimSpace(c.Query("active")); activeQ == "true" || activeQ == "1" {
		onlyActive = true
	}
	limits, errList := h.svc.ListBudgetLimits(c.Request.Context(), onlyActive)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list budgets failed"})
		return
	}
	out := make([]gin.H, 0, len(limits))
	for i := range limits {
		out = append(out, h.formatLimit(&limits[i]))
	}
	c.JSON(http.StatusOK, gin.H{"budgets": out})
}

// createOverrideRequest captures the payload for an administrator override.
type createOverrideRequest struct {
	UserID         string `json:"user_id"`          // Exempted user.
	AdminUserID    string `json:"admin_user_id"`    // Granting administrator.
	OverrideType   string `json:"override_type"`    // Exception kind.
	NewLimitMicros int64  `json:"new_limit_micros"` // Raised limit, micro-dollars.
	Reason         string `json:"reason"`           // Audit reason.
	TTLSeconds     int64  `json:"ttl_seconds"`      // Expiry; zero means none.
}

// CreateOverride records an administrator exception for a budget+user.
func (h *BudgetHandler) CreateOverride(c *gin.Context) {
	budgetID, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body createOverrideRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.TTLSeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ttl_seconds must not be negative"})
		return
	}

	override, errCreate := h.svc.CreateAdminOverride(c.Request.Context(), budget.CreateOverrideParams{
		BudgetID:       budgetID,
		UserID:         strings.TrimSpace(body.UserID),
		AdminUserID:    strings.TrimSpace(body.AdminUserID),
		OverrideType:   models.OverrideType(strings.ToLower(strings.TrimSpace(body.OverrideType))),
		NewLimitMicros: body.NewLimitMicros,
		Reason:         strings.TrimSpace(body.Reason),
		TTL:            time.Duration(body.TTLSeconds) * time.Second,
	})
	if errCreate != nil {
		if errors.Is(errCreate, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "budget not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errCreate.Error()})
		return
	}
	c.JSON(http.StatusCreated, h.formatOverride(override))
}

// GetOverride returns the active override for a budget+user, if any.
func (h *BudgetHandler) GetOverride(c *gin.Context) {
	budgetID, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	override, errCheck := h.svc.CheckAdminOverride(c.Request.Context(), budgetID, userID)
	if errCheck != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if override == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true, "override": h.formatOverride(override)})
}

// formatLimit converts a budget limit into a response payload.
func (h *BudgetHandler) formatLimit(limit *models.BudgetLimit) gin.H {
	return gin.H{
		"id":                    limit.ID,
		"name":                  limit.Name,
		"amount_micros":         limit.AmountMicros,
		"period":                limit.Period,
		"threshold_percentages": limit.ThresholdPercentages,
		"actions":               limit.Actions,
		"applies_to":            limit.AppliesTo,
		"is_active":             limit.IsActive,
		"created_at":            limit.CreatedAt,
		"updated_at":            limit.UpdatedAt,
	}
}

// formatOverride converts an administrator override into a response payload.
func (h *BudgetHandler) formatOverride(override *models.AdminOverride) gin.H {
	return gin.H{
		"id":                    override.ID,
		"budget_id":             override.BudgetID,
		"user_id":               override.UserID,
		"admin_user_id":         override.AdminUserID,
		"override_type":         override.OverrideType,
		"original_limit_micros": override.OriginalLimitMicros,
		"new_limit_micros":      override.NewLimitMicros,
		"reason":                override.Reason,
		"expires_at":            override.ExpiresAt,
		"is_active":             override.IsActive,
		"created_at":            override.CreatedAt,
	}
}

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/costfence/costfence/internal/alerts"
	"github.com/costfence/costfence/internal/models"
	"github.com/costfence/costfence/internal/service"

	"github.com/gin-gonic/gin"
)

// AlertHandler serves cost alert listing and acknowledgement.
type AlertHandler struct {
	svc *service.Service
}

// NewAlertHandler constructs an alert handler.
func NewAlertHandler(svc *service.Service) *AlertHandler {
	return &AlertHandler{svc: svc}
}

// List returns alerts filtered by query parameters, newest first.
func (h *AlertHandler) List(c *gin.Context) {
	query := alerts.ListQuery{
		UserID: strings.TrimSpace(c.Query("user_id")),
	}
	if unackedQ := strings.TrimSpace(c.Query("unacknowledged")); unackedQ == "true" || unackedQ == "1" {
		query.OnlyUnacknowledged = true
	}
	if limitQ := strings.TrimSpace(c.Query("limit")); limitQ != "" {
		if limit, errParse := strconv.Atoi(limitQ); errParse == nil && limit > 0 {
			query.Limit = limit
		}
	}

	rows, errList := h.svc.ListAlerts(c.Request.Context(), query)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list alerts failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, h.formatAlert(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}

// Acknowledge marks one alert as handled.
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if errAck := h.svc.AcknowledgeAlert(c.Request.Context(), id); errAck != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// formatAlert converts a cost alert into a response payload.
func (h *AlertHandler) formatAlert(alert *models.CostAlert) gin.H {
	return gin.H{
		"id":               alert.ID,
		"user_id":          alert.UserID,
		"level":            alert.Level,
		"period_start":     alert.PeriodStart,
		"message":          alert.Message,
		"threshold_micros": alert.ThresholdMicros,
		"current_micros":   alert.CurrentMicros,
		"acknowledged":     alert.Acknowledged,
		"created_at":       alert.CreatedAt,
	}
}

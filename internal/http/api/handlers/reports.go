package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/costfence/costfence/internal/service"

	"github.com/gin-gonic/gin"
)

// ReportHandler serves budget health reports.
type ReportHandler struct {
	svc *service.Service
}

// NewReportHandler constructs a report handler.
func NewReportHandler(svc *service.Service) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// BudgetReport builds the report for one user, or for the whole
// provider/organization scope when user_id is omitted.
func (h *ReportHandler) BudgetReport(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))

	periodDays := 0
	if raw := strings.TrimSpace(c.Query("period_days")); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period_days must be a non-negative integer"})
			return
		}
		periodDays = parsed
	}

	out, errGenerate := h.svc.GetBudgetReport(c.Request.Context(), userID,
		strings.TrimSpace(c.Query("provider")), strings.TrimSpace(c.Query("organization_id")), periodDays)
	if errGenerate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

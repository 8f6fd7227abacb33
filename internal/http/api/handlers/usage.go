package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/costfence/costfence/internal/ledger"
	"github.com/costfence/costfence/internal/models"
	"github.com/costfence/costfence/internal/period"
	"github.com/costfence/costfence/internal/service"

	"github.com/gin-gonic/gin"
)

// UsageHandler serves cost entry recording and usage summaries.
type UsageHandler struct {
	svc *service.Service
}

// NewUsageHandler constructs a usage handler.
func NewUsageHandler(svc *service.Service) *UsageHandler {
	return &UsageHandler{svc: svc}
}

// recordUsageRequest captures one completed provider call.
type recordUsageRequest struct {
	UserID           string         `json:"user_id"`           // User identity.
	SessionID        string         `json:"session_id"`        // Optional session.
	Provider         string         `json:"provider"`          // Provider name.
	Model            string         `json:"model"`             // Model name.
	PromptTokens     int64          `json:"prompt_tokens"`     // Prompt token count.
	CompletionTokens int64          `json:"completion_tokens"` // Completion token count.
	ExecutionTimeMS  int64          `json:"execution_time_ms"` // Call duration.
	RequestID        string         `json:"request_id"`        // Optional upstream id.
	Failed           bool           `json:"failed"`            // Failure flag.
	RequestedAt      *time.Time     `json:"requested_at"`      // Optional request time.
	Metadata         map[string]any `json:"metadata"`          // Caller metadata.
}

// Record prices and persists one call.
func (h *UsageHandler) Record(c *gin.Context) {
	var body recordUsageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if strings.TrimSpace(body.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if strings.TrimSpace(body.Provider) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider is required"})
		return
	}
	if strings.TrimSpace(body.Model) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}
	if body.PromptTokens < 0 || body.CompletionTokens < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token counts must not be negative"})
		return
	}

	params := service.RecordUsageParams{
		UserID:           strings.TrimSpace(body.UserID),
		SessionID:        strings.TrimSpace(body.SessionID),
		Provider:         strings.TrimSpace(body.Provider),
		Model:            strings.TrimSpace(body.Model),
		PromptTokens:     body.PromptTokens,
		CompletionTokens: body.CompletionTokens,
		ExecutionTimeMS:  body.ExecutionTimeMS,
		RequestID:        strings.TrimSpace(body.RequestID),
		Failed:           body.Failed,
		Metadata:         body.Metadata,
	}
	if body.RequestedAt != nil {
		params.RequestedAt = *body.RequestedAt
	}

	entry, errRecord := h.svc.RecordUsage(c.Request.Context(), params)
	if errRecord != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "record usage failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":                entry.ID,
		"request_id":        entry.RequestID,
		"total_tokens":      entry.TotalTokens,
		"total_cost_micros": entry.TotalCostMicros,
	})
}

// Summary aggregates usage over a time window.
func (h *UsageHandler) Summary(c *gin.Context) {
	query := ledger.SummaryQuery{
		UserID:   strings.TrimSpace(c.Query("user_id")),
		Provider: strings.TrimSpace(c.Query("provider")),
	}

	if periodQ := strings.TrimSpace(c.Query("period")); periodQ != "" {
		budgetPeriod := models.BudgetPeriod(strings.ToLower(periodQ))
		if !budgetPeriod.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period must be one of daily, weekly, monthly, quarterly, yearly"})
			return
		}
		query.Start, query.End = period.Resolve(budgetPeriod, time.Now())
	}

	if startQ := strings.TrimSpace(c.Query("start")); startQ != "" {
		start, errParse := time.Parse(time.RFC3339, startQ)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be RFC3339"})
			return
		}
		query.Start = start
	}
	if endQ := strings.TrimSpace(c.Query("end")); endQ != "" {
		end, errParse := time.Parse(time.RFC3339, endQ)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be RFC3339"})
			return
		}
		query.End = end
	}

	summary, errSummarize := h.svc.GetUsageSummary(c.Request.Context(), query)
	if errSummarize != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "summarize usage failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

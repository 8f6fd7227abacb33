package handlers

import (
	"net/http"
	"strings"

	"github.com/costfence/costfence/internal/models"
	"github.com/costfence/costfence/internal/service"

	"github.com/gin-gonic/gin"
)

// PriceHandler manages the model pricing table.
type PriceHandler struct {
	svc *service.Service
}

// NewPriceHandler constructs a price handler.
func NewPriceHandler(svc *service.Service) *PriceHandler {
	return &PriceHandler{svc: svc}
}

// upsertPriceRequest captures one pricing row.
type upsertPriceRequest struct {
	Provider          string `json:"provider"`             // Provider name.
	Model             string `json:"model"`                // Model name.
	InputMicrosPer1K  int64  `json:"input_micros_per_1k"`  // Prompt price per 1K tokens.
	OutputMicrosPer1K int64  `json:"output_micros_per_1k"` // Completion price per 1K tokens.
	IsActive          *bool  `json:"is_active"`            // Required active flag.
}

// Upsert creates or updates a pricing row and refreshes the live snapshot.
func (h *PriceHandler) Upsert(c *gin.Context) {
	var body upsertPriceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
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
	if body.IsActive == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
		return
	}
	if body.InputMicrosPer1K < 0 || body.OutputMicrosPer1K < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prices must not be negative"})
		return
	}

	row, errUpsert := h.svc.UpsertModelPrice(c.Request.Context(), service.UpsertModelPriceParams{
		Provider:          body.Provider,
		Model:             body.Model,
		InputMicrosPer1K:  body.InputMicrosPer1K,
		OutputMicrosPer1K: body.OutputMicrosPer1K,
		IsActive:          *body.IsActive,
	})
	if errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert price failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatPrice(row))
}

// replacePricesRequest carries a full pricing table.
type replacePricesRequest struct {
	Prices []upsertPriceRequest `json:"prices"` // Replacement rows.
}

// Replace swaps the whole pricing table atomically and refreshes the live
// snapshot.
func (h *PriceHandler) Replace(c *gin.Context) {
	var body replacePricesRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.Prices) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prices must not be empty"})
		return
	}

	rows := make([]service.UpsertModelPriceParams, 0, len(body.Prices))
	for _, price := range body.Prices {
		if strings.TrimSpace(price.Provider) == "" || strings.TrimSpace(price.Model) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provider and model are required for every row"})
			return
		}
		if price.IsActive == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required for every row"})
			return
		}
		if price.InputMicrosPer1K < 0 || price.OutputMicrosPer1K < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "prices must not be negative"})
			return
		}
		rows = append(rows, service.UpsertModelPriceParams{
			Provider:          price.Provider,
			Model:             price.Model,
			InputMicrosPer1K:  price.InputMicrosPer1K,
			OutputMicrosPer1K: price.OutputMicrosPer1K,
			IsActive:          *price.IsActive,
		})
	}

	if errReplace := h.svc.ReplaceModelPrices(c.Request.Context(), rows); errReplace != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "replace prices failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"replaced": len(rows)})
}

// List returns all pricing rows.
func (h *PriceHandler) List(c *gin.Context) {
	rows, errList := h.svc.ListModelPrices(c.Request.Context())
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list prices failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, h.formatPrice(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"prices": out})
}

// formatPrice converts a pricing row into a response payload.
func (h *PriceHandler) formatPrice(row *models.ModelPrice) gin.H {
	return gin.H{
		"id":                   row.ID,
		"provider":             row.Provider,
		"model":                row.Model,
		"input_micros_per_1k":  row.InputMicrosPer1K,
		"output_micros_per_1k": row.OutputMicrosPer1K,
		"is_active":            row.IsActive,
		"created_at":           row.CreatedAt,
		"updated_at":           row.UpdatedAt,
	}
}

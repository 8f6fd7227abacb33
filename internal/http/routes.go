// Package http wires the gin router for the cost tracking API.
package http

import (
	"strings"

	"github.com/costfence/costfence/internal/http/api/handlers"
	"github.com/costfence/costfence/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-Id"

// RequestIDMiddleware backfills a request id on every request and echoes it
// in the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Next()
	}
}

// RegisterRoutes mounts all API endpoints on the engine.
func RegisterRoutes(engine *gin.Engine, conn *gorm.DB, svc *service.Service) {
	engine.Use(RequestIDMiddleware())

	health := handlers.NewHealthHandler(conn)
	engine.GET("/healthz", health.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")

	enforcementHandler := handlers.NewEnforcementHandler(svc)
	v1.POST("/enforcement/check", enforcementHandler.Check)

	usageHandler := handlers.NewUsageHandler(svc)
	v1.POST("/usage", usageHandler.Record)
	v1.GET("/usage/summary", usageHandler.Summary)

	budgetHandler := handlers.NewBudgetHandler(svc)
	v1.POST("/budgets", budgetHandler.Create)
	v1.GET("/budgets", budgetHandler.List)
	v1.GET("/budgets/:id", budgetHandler.Get)
	v1.PUT("/budgets/:id", budgetHandler.Update)
	v1.POST("/budgets/:id/overrides", budgetHandler.CreateOverride)
	v1.GET("/budgets/:id/overrides/:user_id", budgetHandler.GetOverride)

	alertHandler := handlers.NewAlertHandler(svc)
	v1.GET("/alerts", alertHandler.List)
	v1.POST("/alerts/:id/acknowledge", alertHandler.Acknowledge)

	reportHandler := handlers.NewReportHandler(svc)
	v1.GET("/reports/budget", reportHandler.BudgetReport)

	priceHandler := handlers.NewPriceHandler(svc)
	v1.GET("/prices", priceHandler.List)
	v1.POST("/prices", priceHandler.Upsert)
	v1.PUT("/prices", priceHandler.Replace)
}

// Package service composes the storage, billing, enforcement, alerting, and
// reporting components behind one API used by the HTTP handlers.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/costfence/costfence/internal/alerts"
	"github.com/costfence/costfence/internal/billing"
	"github.com/costfence/costfence/internal/budget"
	"github.com/costfence/costfence/internal/enforcement"
	"github.com/costfence/costfence/internal/ledger"
	"github.com/costfence/costfence/internal/metrics"
	"github.com/costfence/costfence/internal/models"
	"github.com/costfence/costfence/internal/report"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// persistTimeout bounds post-execution writes that run detached from the
// caller's request context.
const persistTimeout = 5 * time.Second

// Service is the composition root for all cost tracking operations.
type Service struct {
	db         *gorm.DB
	pricing    *billing.Table
	calculator *billing.Calculator
	ledger     *ledger.Ledger
	budgets    *budget.Store
	engine     *enforcement.Engine
	alerts     *alerts.Manager
	reports    *report.Generator
	metrics    *metrics.Metrics
}

// New wires a Service over an opened database connection. A nil metrics
// value disables instrumentation.
func New(conn *gorm.DB, checkTimeout time.Duration, collectors *metrics.Metrics) *Service {
	pricing := billing.NewTable()
	entries := ledger.New(conn)
	budgets := budget.NewStore(conn)
	engine := enforcement.NewEngine(budgets, entries, checkTimeout)
	return &Service{
		db:         conn,
		pricing:    pricing,
		calculator: billing.NewCalculator(pricing),
		ledger:     entries,
		budgets:    budgets,
		engine:     engine,
		alerts:     alerts.NewManager(conn, entries),
		reports:    report.NewGenerator(budgets, entries, engine),
		metrics:    collectors,
	}
}

// Pricing exposes the live pricing table.
func (s *Service) Pricing() *billing.Table { return s.pricing }

// ReloadPricing refreshes the in-memory pricing snapshot from the database.
func (s *Service) ReloadPricing(ctx context.Context) error {
	return s.pricing.Reload(ctx, s.db)
}

// UpsertModelPriceParams describes one pricing table row.
type UpsertModelPriceParams struct {
	Provider          string
	Model             string
	InputMicrosPer1K  int64
	OutputMicrosPer1K int64
	IsActive          bool
}

// UpsertModelPrice creates or updates one pricing row and refreshes the
// in-memory snapshot, so new prices apply to the next calculation.
func (s *Service) UpsertModelPrice(ctx context.Context, params UpsertModelPriceParams) (*models.ModelPrice, error) {
	provider := strings.ToLower(strings.TrimSpace(params.Provider))
	model := strings.ToLower(strings.TrimSpace(params.Model))
	if provider == "" || model == "" {
		return nil, errors.New("service: provider and model are required")
	}
	if params.InputMicrosPer1K < 0 || params.OutputMicrosPer1K < 0 {
		return nil, errors.New("service: prices must not be negative")
	}

	row := &models.ModelPrice{}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		errFind := tx.Where("provider = ? AND model = ?", provider, model).First(row).Error
		if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return errFind
		}
		row.Provider = provider
		row.Model = model
		row.InputMicrosPer1K = params.InputMicrosPer1K
		row.OutputMicrosPer1K = params.OutputMicrosPer1K
		row.IsActive = params.IsActive
		return tx.Save(row).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	if errReload := s.pricing.Reload(ctx, s.db); errReload != nil {
		return nil, errReload
	}
	return row, nil
}

// ReplaceModelPrices swaps the whole pricing table for the supplied rows in
// one transaction, then refreshes the in-memory snapshot. Existing rows not
// present in the new set are removed.
func (s *Service) ReplaceModelPrices(ctx context.Context, rows []UpsertModelPriceParams) error {
	if len(rows) == 0 {
		return errors.New("service: at least one price row is required")
	}

	replacement := make([]models.ModelPrice, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, params := range rows {
		provider := strings.ToLower(strings.TrimSpace(params.Provider))
		model := strings.ToLower(strings.TrimSpace(params.Model))
		if provider == "" || model == "" {
			return errors.New("service: provider and model are required")
		}
		if params.InputMicrosPer1K < 0 || params.OutputMicrosPer1K < 0 {
			return errors.New("service: prices must not be negative")
		}
		key := provider + "/" + model
		if _, dup := seen[key]; dup {
			return fmt.Errorf("service: duplicate price row for %s", key)
		}
		seen[key] = struct{}{}
		replacement = append(replacement, models.ModelPrice{
			Provider:          provider,
			Model:             model,
			InputMicrosPer1K:  params.InputMicrosPer1K,
			OutputMicrosPer1K: params.OutputMicrosPer1K,
			IsActive:          params.IsActive,
		})
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errDelete := tx.Where("1 = 1").Delete(&models.ModelPrice{}).Error; errDelete != nil {
			return errDelete
		}
		return tx.Create(&replacement).Error
	})
	if errTx != nil {
		return errTx
	}
	return s.pricing.Reload(ctx, s.db)
}

// ListModelPrices returns all pricing rows.
func (s *Service) ListModelPrices(ctx context.Context) ([]models.ModelPrice, error) {
	var rows []models.ModelPrice
	errFind := s.db.WithContext(ctx).Order("provider, model").Find(&rows).Error
	if errFind != nil {
		return nil, errFind
	}
	return rows, nil
}

// CheckEnforcement evaluates whether a user may spend an estimated amount.
func (s *Service) CheckEnforcement(ctx context.Context, userID string, estimatedCostMicros int64, provider, model, organizationID string) enforcement.Decision {
	started := time.Now()
	decision := s.engine.Check(ctx, userID, estimatedCostMicros, provider, model, organizationID)
	s.metrics.RecordCheckDuration("check_enforcement", time.Since(started).Seconds())
	s.metrics.RecordEnforcementCheck(decision.CanExecute, decision.BudgetStatus)
	for _, action := range decision.EnforcementActions {
		s.metrics.RecordEnforcementAction(action.Action)
	}
	return decision
}

// RecordUsageParams describes one completed (or failed) provider call.
type RecordUsageParams struct {
	UserID           string
	SessionID        string
	Provider         string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	ExecutionTimeMS  int64
	RequestID        string
	Failed           bool
	RequestedAt      time.Time
	Metadata         map[string]any
}

// RecordUsage prices and persists one call, then evaluates alert thresholds.
// Alerting is best effort: its failure never fails the record.
func (s *Service) RecordUsage(ctx context.Context, params RecordUsageParams) (*models.CostEntry, error) {
	userID := strings.TrimSpace(params.UserID)
	if userID == "" {
		return nil, errors.New("service: user id is required")
	}
	if strings.TrimSpace(params.Provider) == "" || strings.TrimSpace(params.Model) == "" {
		return nil, errors.New("service: provider and model are required")
	}

	cost := billing.Cost{}
	if !params.Failed {
		cost = s.calculator.Cost(params.Provider, params.Model, params.PromptTokens, params.CompletionTokens)
	}

	metadata := params.Metadata
	if cost.PricingMissing && !params.Failed {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["pricing_missing"] = true
	}
	var rawMetadata datatypes.JSON
	if len(metadata) > 0 {
		encoded, errMarshal := json.Marshal(metadata)
		if errMarshal != nil {
			return nil, errMarshal
		}
		rawMetadata = datatypes.JSON(encoded)
	}

	entry := &models.CostEntry{
		UserID:           userID,
		SessionID:        params.SessionID,
		Provider:         params.Provider,
		Model:            params.Model,
		PromptTokens:     params.PromptTokens,
		CompletionTokens: params.CompletionTokens,
		InputCostMicros:  cost.InputMicros,
		OutputCostMicros: cost.OutputMicros,
		RequestedAt:      params.RequestedAt,
		ExecutionTimeMS:  params.ExecutionTimeMS,
		RequestID:        params.RequestID,
		Failed:           params.Failed,
		Metadata:         rawMetadata,
	}

	// The call already happened; persistence must not be cut short by the
	// caller hanging up.
	persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if errRecord := s.ledger.RecordEntry(persistCtx, entry); errRecord != nil {
		return nil, errRecord
	}
	s.metrics.RecordUsage(entry.Provider, entry.Model, entry.TotalCostMicros)

	raised, errEvaluate := s.alerts.EvaluateUser(persistCtx, userID)
	if errEvaluate != nil {
		log.WithError(errEvaluate).Warnf("service: alert evaluation failed for user %s", userID)
	}
	for _, level := range raised {
		s.metrics.RecordAlert(level)
	}

	return entry, nil
}

// GetUsageSummary aggregates ledger entries for a window.
func (s *Service) GetUsageSummary(ctx context.Context, query ledger.SummaryQuery) (ledger.Summary, error) {
	return s.ledger.Summarize(ctx, query)
}

// CreateBudgetLimit persists a new budget limit.
func (s *Service) CreateBudgetLimit(ctx context.Context, params budget.CreateLimitParams) (*models.BudgetLimit, error) {
	return s.budgets.CreateLimit(ctx, params)
}

// UpdateBudgetLimit replaces a budget limit's configuration.
func (s *Service) UpdateBudgetLimit(ctx context.Context, id uint64, params budget.CreateLimitParams) (*models.BudgetLimit, error) {
	return s.budgets.UpdateLimit(ctx, id, params)
}

// GetBudgetLimit fetches one budget limit.
func (s *Service) GetBudgetLimit(ctx context.Context, id uint64) (*models.BudgetLimit, error) {
	return s.budgets.GetLimit(ctx, id)
}

// ListBudgetLimits lists budget limits, optionally only active ones.
func (s *Service) ListBudgetLimits(ctx context.Context, onlyActive bool) ([]models.BudgetLimit, error) {
	return s.budgets.ListLimits(ctx, onlyActive)
}

// CreateAdminOverride records an administrator exception for a budget+user.
func (s *Service) CreateAdminOverride(ctx context.Context, params budget.CreateOverrideParams) (*models.AdminOverride, error) {
	return s.budgets.CreateOverride(ctx, params)
}

// CheckAdminOverride returns the active override for a budget+user, if any.
func (s *Service) CheckAdminOverride(ctx context.Context, budgetID uint64, userID string) (*models.AdminOverride, error) {
	return s.budgets.CheckOverride(ctx, budgetID, userID)
}

// GetBudgetReport builds the budget health report for one user, or for the
// whole provider/organization scope when userID is empty.
func (s *Service) GetBudgetReport(ctx context.Context, userID, provider, organizationID string, periodDays int) (*report.Report, error) {
	return s.reports.Generate(ctx, userID, provider, organizationID, periodDays)
}

// ListAlerts lists cost alerts.
func (s *Service) ListAlerts(ctx context.Context, query alerts.ListQuery) ([]models.CostAlert, error) {
	return s.alerts.List(ctx, query)
}

// AcknowledgeAlert marks an alert as handled.
func (s *Service) AcknowledgeAlert(ctx context.Context, alertID uint64) error {
	return s.alerts.Acknowledge(ctx, alertID)
}

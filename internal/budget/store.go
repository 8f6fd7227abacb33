// Package budget stores administrator-configured spending limits and
// time-bounded enforcement overrides.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/costfence/costfence/internal/models"
	"gorm.io/gorm"
)

// Store persists budget limits and admin overrides.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store backed by GORM.
func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// CreateLimitParams holds inputs for budget limit creation.
type CreateLimitParams struct {
	Name                 string
	AmountMicros         int64
	Period               models.BudgetPeriod
	ThresholdPercentages models.ThresholdList
	Actions              models.ActionMap
	AppliesTo            models.AppliesTo
	IsActive             bool
}

// validateLimitParams rejects malformed configuration before any state
// change. Configuration errors here propagate to the caller: they represent
// explicit administrator intent.
func validateLimitParams(params CreateLimitParams) error {
	if strings.TrimSpace(params.Name) == "" {
		return errors.New("budget: name is required")
	}
	if params.AmountMicros <= 0 {
		return errors.New("budget: amount must be positive")
	}
	if !params.Period.Valid() {
		return fmt.Errorf("budget: unknown period %q", params.Period)
	}
	if errThresholds := params.ThresholdPercentages.Validate(); errThresholds != nil {
		return fmt.Errorf("budget: %w", errThresholds)
	}
	if errActions := params.Actions.Validate(params.ThresholdPercentages); errActions != nil {
		return fmt.Errorf("budget: %w", errActions)
	}
	return nil
}

// CreateLimit validates and inserts a budget limit.
func (s *Store) CreateLimit(ctx context.Context, params CreateLimitParams) (*models.BudgetLimit, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("budget: nil db")
	}
	if errValidate := validateLimitParams(params); errValidate != nil {
		return nil, errValidate
	}

	now := time.Now().UTC()
	limit := models.BudgetLimit{
		Name:                 strings.TrimSpace(params.Name),
		AmountMicros:         params.AmountMicros,
		Period:               params.Period,
		ThresholdPercentages: params.ThresholdPercentages,
		Actions:              params.Actions,
		AppliesTo:            params.AppliesTo,
		IsActive:             params.IsActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&limit).Error; errCreate != nil {
		return nil, errCreate
	}
	return &limit, nil
}

// UpdateLimit validates and replaces the mutable fields of a budget limit.
func (s *Store) UpdateLimit(ctx context.Context, id uint64, params CreateLimitParams) (*models.BudgetLimit, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("budget: nil db")
	}
	if errValidate := validateLimitParams(params); errValidate != nil {
		return nil, errValidate
	}

	var limit models.BudgetLimit
	if errFind := s.db.WithContext(ctx).First(&limit, id).Error; errFind != nil {
		return nil, errFind
	}

	limit.Name = strings.TrimSpace(params.Name)
	limit.AmountMicros = params.AmountMicros
	limit.Period = params.Period
	limit.ThresholdPercentages = params.ThresholdPercentages
	limit.Actions = params.Actions
	limit.AppliesTo = params.AppliesTo
	limit.IsActive = params.IsActive
	limit.UpdatedAt = time.Now().UTC()

	if errSave := s.db.WithContext(ctx).Save(&limit).Error; errSave != nil {
		return nil, errSave
	}
	return &limit, nil
}

// GetLimit loads one budget limit by id.
func (s *Store) GetLimit(ctx context.Context, id uint64) (*models.BudgetLimit, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("budget: nil db")
	}
	var limit models.BudgetLimit
	if errFind := s.db.WithContext(ctx).First(&limit, id).Error; errFind != nil {
		return nil, errFind
	}
	return &limit, nil
}

// ListLimits returns budget limits, optionally only active ones.
func (s *Store) ListLimits(ctx context.Context, onlyActive bool) ([]models.BudgetLimit, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("budget: nil db")
	}
	q := s.db.WithContext(ctx).Model(&models.BudgetLimit{}).Order("id ASC")
	if onlyActive {
		q = q.Where("is_active = ?", true)
	}
	var limits []models.BudgetLimit
	if errFind := q.Find(&limits).Error; errFind != nil {
		return nil, errFind
	}
	return limits, nil
}

// ApplicableBudgets returns every active budget whose applies_to filter
// governs the queried identifiers. The filter documents are small, so
// applicability is evaluated in Go over the active set rather than in SQL.
func (s *Store) ApplicableBudgets(ctx context.Context, userID, provider, organizationID string) ([]models.BudgetLimit, error) {
	active, errList := s.ListLimits(ctx, true)
	if errList != nil {
		return nil, errList
	}

	out := make([]models.BudgetLimit, 0, len(active))
	for _, limit := range active {
		if limit.AppliesTo.Matches(userID, provider, organizationID) {
			out = append(out, limit)
		}
	}
	return out, nil
}

// ScopedBudgets returns every active budget governing the queried provider
// and organization, regardless of which users it names. Used for reports
// over a whole scope rather than one user.
func (s *Store) ScopedBudgets(ctx context.Context, provider, organizationID string) ([]models.BudgetLimit, error) {
	active, errList := s.ListLimits(ctx, true)
	if errList != nil {
		return nil, errList
	}

	out := make([]models.BudgetLimit, 0, len(active))
	for _, limit := range active {
		if limit.AppliesTo.MatchesScope(provider, organizationID) {
			out = append(out, limit)
		}
	}
	return out, nil
}

package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/costfence/costfence/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CreateOverrideParams holds inputs for admin override creation.
type CreateOverrideParams struct {
	BudgetID       uint64
	UserID         string
	AdminUserID    string
	OverrideType   models.OverrideType
	NewLimitMicros int64
	Reason         string
	TTL            time.Duration // Zero means no expiry.
}

// CreateOverride persists an administrator exception. Any prior active
// override for the same (budget, user) pair is deactivated in the same
// transaction, so CheckOverride always has at most one candidate and
// decisions stay deterministic under duplicate grants.
func (s *Store) CreateOverride(ctx context.Context, params CreateOverrideParams) (*models.AdminOverride, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("budget: nil db")
	}
	if params.BudgetID == 0 {
		return nil, errors.New("budget: override budget_id is required")
	}
	if strings.TrimSpace(params.UserID) == "" {
		return nil, errors.New("budget: override user_id is required")
	}
	if strings.TrimSpace(params.AdminUserID) == "" {
		return nil, errors.New("budget: override admin_user_id is required")
	}
	if !params.OverrideType.Valid() {
		return nil, fmt.Errorf("budget: unknown override type %q", params.OverrideType)
	}
	if strings.TrimSpace(params.Reason) == "" {
		return nil, errors.New("budget: override reason is required")
	}
	if params.TTL < 0 {
		return nil, errors.New("budget: override ttl must not be negative")
	}

	limit, errGet := s.GetLimit(ctx, params.BudgetID)
	if errGet != nil {
		return nil, fmt.Errorf("budget: override target: %w", errGet)
	}

	now := time.Now().UTC()
	override := models.AdminOverride{
		BudgetID:            params.BudgetID,
		UserID:              strings.TrimSpace(params.UserID),
		AdminUserID:         strings.TrimSpace(params.AdminUserID),
		OverrideType:        params.OverrideType,
		OriginalLimitMicros: limit.AmountMicros,
		NewLimitMicros:      params.NewLimitMicros,
		Reason:              strings.TrimSpace(params.Reason),
		IsActive:            true,
		CreatedAt:           now,
	}
	if params.TTL > 0 {
		expires := now.Add(params.TTL)
		override.ExpiresAt = &expires
	}

	if errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errSupersede := tx.Model(&models.AdminOverride{}).
			Where("budget_id = ? AND user_id = ? AND is_active = ?", override.BudgetID, override.UserID, true).
			Update("is_active", false).Error; errSupersede != nil {
			return errSupersede
		}
		return tx.Create(&override).Error
	}); errTx != nil {
		return nil, errTx
	}
	return &override, nil
}

// CheckOverride returns the active, unexpired override for a (budget, user)
// pair, or nil when none applies. An override found expired is lazily
// deactivated; deactivation failure is logged but never surfaces, since the
// expired override is already excluded from the decision.
func (s *Store) CheckOverride(ctx context.Context, budgetID uint64, userID string) (*models.AdminOverride, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("budget: nil db")
	}

	var override models.AdminOverride
	errFind := s.db.WithContext(ctx).
		Where("budget_id = ? AND user_id = ? AND is_active = ?", budgetID, userID, true).
		Order("id DESC").
		First(&override).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errFind
	}

	if override.Expired(time.Now().UTC()) {
		if errExpire := s.db.WithContext(ctx).
			Model(&models.AdminOverride{}).
			Where("id = ?", override.ID).
			Update("is_active", false).Error; errExpire != nil {
			log.WithError(errExpire).Warn("budget: failed to deactivate expired override")
		}
		return nil, nil
	}
	return &override, nil
}

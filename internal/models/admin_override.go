package models

import "time"

// OverrideType describes what an administrator exception changes.
type OverrideType string

// OverrideType constants enumerate the supported exception kinds.
const (
	// OverrideTemporaryIncrease raises the effective limit for one user.
	OverrideTemporaryIncrease OverrideType = "temporary_increase"
	// OverrideBypassApproval satisfies require_approval actions.
	OverrideBypassApproval OverrideType = "bypass_approval"
)

// Valid reports whether the override type is known.
func (t OverrideType) Valid() bool {
	return t == OverrideTemporaryIncrease || t == OverrideBypassApproval
}

// AdminOverride is a time-bounded administrator exception to one budget's
// enforcement for one user. Expiry is checked lazily at read time.
type AdminOverride struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	BudgetID    uint64 `gorm:"not null;index:idx_admin_overrides_budget_user,priority:1"` // Overridden budget ID.
	UserID      string `gorm:"type:text;not null;index:idx_admin_overrides_budget_user,priority:2"` // Beneficiary user.
	AdminUserID string `gorm:"type:text;not null"`                                        // Granting administrator.

	OverrideType OverrideType `gorm:"type:text;not null"` // Exception kind.

	OriginalLimitMicros int64 `gorm:"not null;default:0"` // Budget amount at grant time.
	NewLimitMicros      int64 `gorm:"not null;default:0"` // Effective amount while active.

	Reason    string     `gorm:"type:text;not null"` // Administrator-supplied justification.
	ExpiresAt *time.Time // Expiry time; nil means no TTL.

	IsActive bool `gorm:"not null;default:true"` // Cleared on supersession or lazy expiry.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// Expired reports whether the override's TTL has passed at the given instant.
func (o *AdminOverride) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

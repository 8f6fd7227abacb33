package models

import "time"

// AlertLevel ranks threshold-crossing notifications.
type AlertLevel string

// AlertLevel constants, ordered from least to most severe.
const (
	AlertInfo      AlertLevel = "info"
	AlertWarning   AlertLevel = "warning"
	AlertCritical  AlertLevel = "critical"
	AlertEmergency AlertLevel = "emergency"
)

// Valid reports whether the level is a known alert level.
func (l AlertLevel) Valid() bool {
	switch l {
	case AlertInfo, AlertWarning, AlertCritical, AlertEmergency:
		return true
	}
	return false
}

// CostAlert is an advisory notification created when a user's current-period
// spend crosses a ladder threshold. The unique index on
// (user_id, level, period_start) keeps alerting at-most-once per period even
// when concurrent writers race the existence check.
type CostAlert struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID string     `gorm:"type:text;not null;uniqueIndex:idx_cost_alerts_user_level_period,priority:1"` // Alerted user.
	Level  AlertLevel `gorm:"type:text;not null;uniqueIndex:idx_cost_alerts_user_level_period,priority:2"` // Severity level.

	PeriodStart time.Time `gorm:"not null;uniqueIndex:idx_cost_alerts_user_level_period,priority:3"` // Start of the alerted period.

	Message         string `gorm:"type:text;not null"` // Human-readable description.
	ThresholdMicros int64  `gorm:"not null"`           // Ladder threshold crossed, micro-dollars.
	CurrentMicros   int64  `gorm:"not null"`           // Spend at alert time, micro-dollars.

	Acknowledged bool `gorm:"not null;default:false;index"` // Operator acknowledgement flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// CostEntry records the metered cost of a single provider call.
// Rows are append-only: they are created exactly once per completed
// (or failed, zero-cost) call and never mutated afterwards.
type CostEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    string `gorm:"type:text;not null;index:idx_cost_entries_user_time,priority:1"` // Trusted user identity.
	SessionID string `gorm:"type:text;index"`                                                // Caller session identifier.

	Provider string `gorm:"type:text;not null;index"` // Provider name.
	Model    string `gorm:"type:text;not null;index"` // Model name.

	PromptTokens     int64 `gorm:"not null;default:0"` // Prompt token count.
	CompletionTokens int64 `gorm:"not null;default:0"` // Completion token count.
	TotalTokens      int64 `gorm:"not null;default:0"` // Total token count.

	InputCostMicros  int64 `gorm:"not null;default:0"` // Prompt cost in micro-dollars.
	OutputCostMicros int64 `gorm:"not null;default:0"` // Completion cost in micro-dollars.
	TotalCostMicros  int64 `gorm:"not null;default:0"` // Total cost in micro-dollars.

	RequestedAt     time.Time `gorm:"not null;index:idx_cost_entries_user_time,priority:2"` // Request timestamp.
	ExecutionTimeMS int64     `gorm:"not null;default:0"`                                   // Provider call duration.
	RequestID       string    `gorm:"type:text;index"`                                      // Upstream request identifier.
	Failed          bool      `gorm:"not null;default:false"`                               // Failure flag; failed calls cost zero.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Free-form caller metadata.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

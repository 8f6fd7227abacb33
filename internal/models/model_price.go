package models

import "time"

// ModelPrice is one pricing table row: the per-1000-token price for a
// (provider, model) pair in micro-dollars. Updates replace the in-memory
// pricing snapshot wholesale and never reprice existing cost entries.
type ModelPrice struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Provider string `gorm:"type:text;not null;uniqueIndex:idx_model_prices_provider_model,priority:1"` // Provider name, lower-cased.
	Model    string `gorm:"type:text;not null;uniqueIndex:idx_model_prices_provider_model,priority:2"` // Model name.

	InputMicrosPer1K  int64 `gorm:"not null;default:0"` // Prompt price per 1000 tokens, micro-dollars.
	OutputMicrosPer1K int64 `gorm:"not null;default:0"` // Completion price per 1000 tokens, micro-dollars.

	IsActive bool `gorm:"not null;default:true"` // Whether the row enters the snapshot.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

package billing

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/costfence/costfence/internal/models"
	"gorm.io/gorm"
)

// Price holds the per-1000-token prices for one (provider, model) pair in
// micro-dollars.
type Price struct {
	InputMicrosPer1K  int64
	OutputMicrosPer1K int64
}

// Table is the in-memory pricing table. Lookups read an immutable snapshot;
// updates replace the whole snapshot atomically so a reader never observes a
// partially-updated table mid-calculation.
type Table struct {
	snapshot atomic.Value // stores map[string]Price
}

// NewTable constructs an empty pricing table.
func NewTable() *Table {
	t := &Table{}
	t.snapshot.Store(map[string]Price{})
	return t
}

// priceKey normalizes a (provider, model) pair into a snapshot key. Rows are
// stored lowercased, so lookups fold case on both parts.
func priceKey(provider, model string) string {
	return strings.ToLower(strings.TrimSpace(provider)) + "/" + strings.ToLower(strings.TrimSpace(model))
}

// Replace swaps in a new pricing snapshot wholesale.
func (t *Table) Replace(prices map[string]Price) {
	next := make(map[string]Price, len(prices))
	for key, price := range prices {
		next[key] = price
	}
	t.snapshot.Store(next)
}

// Lookup returns the price for a (provider, model) pair.
func (t *Table) Lookup(provider, model string) (Price, bool) {
	current, ok := t.snapshot.Load().(map[string]Price)
	if !ok {
		return Price{}, false
	}
	price, found := current[priceKey(provider, model)]
	return price, found
}

// Len returns the number of priced (provider, model) pairs.
func (t *Table) Len() int {
	current, ok := t.snapshot.Load().(map[string]Price)
	if !ok {
		return 0
	}
	return len(current)
}

// Reload reads every active pricing row and replaces the snapshot.
func (t *Table) Reload(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return errors.New("billing: nil db")
	}

	var rows []models.ModelPrice
	if errFind := conn.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&rows).Error; errFind != nil {
		return errFind
	}

	next := make(map[string]Price, len(rows))
	for _, row := range rows {
		next[priceKey(row.Provider, row.Model)] = Price{
			InputMicrosPer1K:  row.InputMicrosPer1K,
			OutputMicrosPer1K: row.OutputMicrosPer1K,
		}
	}
	t.Replace(next)
	return nil
}

// defaultPrices seeds a fresh deployment with well-known provider rates,
// expressed as micro-dollars per 1000 tokens.
var defaultPrices = []models.ModelPrice{
	{Provider: "openai", Model: "gpt-4", InputMicrosPer1K: 30_000, OutputMicrosPer1K: 60_000},
	{Provider: "openai", Model: "gpt-4-turbo", InputMicrosPer1K: 10_000, OutputMicrosPer1K: 30_000},
	{Provider: "openai", Model: "gpt-4o", InputMicrosPer1K: 2_500, OutputMicrosPer1K: 10_000},
	{Provider: "openai", Model: "gpt-3.5-turbo", InputMicrosPer1K: 500, OutputMicrosPer1K: 1_500},
	{Provider: "anthropic", Model: "claude-3-opus", InputMicrosPer1K: 15_000, OutputMicrosPer1K: 75_000},
	{Provider: "anthropic", Model: "claude-3-sonnet", InputMicrosPer1K: 3_000, OutputMicrosPer1K: 15_000},
	{Provider: "anthropic", Model: "claude-3-haiku", InputMicrosPer1K: 250, OutputMicrosPer1K: 1_250},
	{Provider: "google", Model: "gemini-pro", InputMicrosPer1K: 500, OutputMicrosPer1K: 1_500},
}

// SeedDefaultPrices inserts the default pricing rows when the table is empty.
func SeedDefaultPrices(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return errors.New("billing: nil db")
	}

	var count int64
	if errCount := conn.WithContext(ctx).Model(&models.ModelPrice{}).Count(&count).Error; errCount != nil {
		return errCount
	}
	if count > 0 {
		return nil
	}

	rows := make([]models.ModelPrice, len(defaultPrices))
	copy(rows, defaultPrices)
	for i := range rows {
		rows[i].IsActive = true
	}
	return conn.WithContext(ctx).Create(&rows).Error
}

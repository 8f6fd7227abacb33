// Package ledger is the append-only store of individual cost entries and
// the aggregator that reduces them into usage summaries.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/costfence/costfence/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ledger records and aggregates cost entries.
type Ledger struct {
	db *gorm.DB
}

// New constructs a Ledger backed by GORM.
func New(conn *gorm.DB) *Ledger {
	return &Ledger{db: conn}
}

// RecordEntry appends one cost entry. Derived fields (total tokens, total
// cost, request id) are backfilled before insert; persistence failures are
// surfaced to the caller but the already-approved execution is never
// rescinded on their account.
func (l *Ledger) RecordEntry(ctx context.Context, entry *models.CostEntry) error {
	if l == nil || l.db == nil {
		return errors.New("ledger: nil db")
	}
	if entry == nil {
		return errors.New("ledger: nil entry")
	}

	if entry.TotalTokens == 0 {
		entry.TotalTokens = entry.PromptTokens + entry.CompletionTokens
	}
	entry.TotalCostMicros = entry.InputCostMicros + entry.OutputCostMicros
	if entry.RequestedAt.IsZero() {
		entry.RequestedAt = time.Now().UTC()
	} else {
		entry.RequestedAt = entry.RequestedAt.UTC()
	}
	if strings.TrimSpace(entry.RequestID) == "" {
		entry.RequestID = uuid.NewString()
	}

	return l.db.WithContext(ctx).Create(entry).Error
}

// SummaryQuery filters a usage summarization.
type SummaryQuery struct {
	UserID   string    // Empty matches all users.
	Provider string    // Empty matches all providers.
	Start    time.Time // Inclusive; zero means unbounded.
	End      time.Time // Exclusive; zero means unbounded.
}

// Summary is the aggregate of every cost entry matching a query. An empty
// match set yields all-zero fields, never an error.
type Summary struct {
	TotalRequests           int64            `json:"total_requests"`
	TotalTokens             int64            `json:"total_tokens"`
	TotalCostMicros         int64            `json:"total_cost_micros"`
	CostByProviderMicros    map[string]int64 `json:"cost_by_provider_micros"`
	CostByModelMicros       map[string]int64 `json:"cost_by_model_micros"`
	AvgCostMicrosPerRequest int64            `json:"avg_cost_micros_per_request"`
	AvgTokensPerRequest     int64            `json:"avg_tokens_per_request"`
}

// groupRow holds one GROUP BY aggregation row.
type groupRow struct {
	Key        string
	CostMicros int64
}

// Summarize reduces matching cost entries into a Summary. It is a pure
// reduction: identical arguments with no intervening writes return identical
// results.
func (l *Ledger) Summarize(ctx context.Context, query SummaryQuery) (Summary, error) {
	summary := Summary{
		CostByProviderMicros: map[string]int64{},
		CostByModelMicros:    map[string]int64{},
	}
	if l == nil || l.db == nil {
		return summary, errors.New("ledger: nil db")
	}

	base := func() *gorm.DB {
		q := l.db.WithContext(ctx).Model(&models.CostEntry{})
		if !query.Start.IsZero() {
			q = q.Where("requested_at >= ?", query.Start.UTC())
		}
		if !query.End.IsZero() {
			q = q.Where("requested_at < ?", query.End.UTC())
		}
		if userID := strings.TrimSpace(query.UserID); userID != "" {
			q = q.Where("user_id = ?", userID)
		}
		if provider := strings.TrimSpace(query.Provider); provider != "" {
			q = q.Where("provider = ?", provider)
		}
		return q
	}

	var totals struct {
		Requests   int64
		Tokens     int64
		CostMicros int64
	}
	if errScan := base().
		Select("COUNT(*) AS requests, COALESCE(SUM(total_tokens), 0) AS tokens, COALESCE(SUM(total_cost_micros), 0) AS cost_micros").
		Scan(&totals).Error; errScan != nil {
		return summary, errScan
	}

	summary.TotalRequests = totals.Requests
	summary.TotalTokens = totals.Tokens
	summary.TotalCostMicros = totals.CostMicros
	if totals.Requests > 0 {
		summary.AvgCostMicrosPerRequest = totals.CostMicros / totals.Requests
		summary.AvgTokensPerRequest = totals.Tokens / totals.Requests
	}

	var byProvider []groupRow
	if errScan := base().
		Select("provider AS key, COALESCE(SUM(total_cost_micros), 0) AS cost_micros").
		Group("provider").
		Scan(&byProvider).Error; errScan != nil {
		return summary, errScan
	}
	for _, row := range byProvider {
		summary.CostByProviderMicros[row.Key] = row.CostMicros
	}

	var byModel []groupRow
	if errScan := base().
		Select("model AS key, COALESCE(SUM(total_cost_micros), 0) AS cost_micros").
		Group("model").
		Scan(&byModel).Error; errScan != nil {
		return summary, errScan
	}
	for _, row := range byModel {
		summary.CostByModelMicros[row.Key] = row.CostMicros
	}

	return summary, nil
}

// ScopeSpendMicros sums the total cost inside [start, end) across the given
// users, or across every user when the list is empty.
func (l *Ledger) ScopeSpendMicros(ctx context.Context, userIDs []string, start, end time.Time) (int64, error) {
	if l == nil || l.db == nil {
		return 0, errors.New("ledger: nil db")
	}

	q := l.db.WithContext(ctx).
		Model(&models.CostEntry{}).
		Where("requested_at >= ? AND requested_at < ?", start.UTC(), end.UTC())
	if len(userIDs) > 0 {
		q = q.Where("user_id IN ?", userIDs)
	}

	var costMicros int64
	if errScan := q.Select("COALESCE(SUM(total_cost_micros), 0)").Scan(&costMicros).Error; errScan != nil {
		return 0, errScan
	}
	return costMicros, nil
}

// SpendMicros sums the total cost for one user inside [start, end).
// Per-user aggregation is a commutative sum, so concurrent writes only
// affect transient visibility, never the final total.
func (l *Ledger) SpendMicros(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	if l == nil || l.db == nil {
		return 0, errors.New("ledger: nil db")
	}

	var costMicros int64
	if errScan := l.db.WithContext(ctx).
		Model(&models.CostEntry{}).
		Where("user_id = ? AND requested_at >= ? AND requested_at < ?", userID, start.UTC(), end.UTC()).
		Select("COALESCE(SUM(total_cost_micros), 0)").
		Scan(&costMicros).Error; errScan != nil {
		return 0, errScan
	}
	return costMicros, nil
}

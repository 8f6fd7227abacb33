// Package report assembles on-demand budget health reports from live ledger
// and budget state. Reports are derived views: nothing here is persisted.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/costfence/costfence/internal/budget"
	"github.com/costfence/costfence/internal/enforcement"
	"github.com/costfence/costfence/internal/ledger"
	"github.com/costfence/costfence/internal/models"
	"github.com/costfence/costfence/internal/period"

	log "github.com/sirupsen/logrus"
)

// Report is one user's budget health snapshot.
type Report struct {
	UserID          string                 `json:"user_id"`
	GeneratedAt     time.Time              `json:"generated_at"`
	OverallStatus   models.BudgetStatus    `json:"overall_status"`
	Budgets         []enforcement.Standing `json:"budgets"`
	CurrentPeriod   ledger.Summary         `json:"current_period"`
	Recommendations []string               `json:"recommendations"`
}

// Generator builds budget reports.
type Generator struct {
	budgets *budget.Store
	ledger  *ledger.Ledger
	engine  *enforcement.Engine
	now     func() time.Time
}

func NewGenerator(budgets *budget.Store, entries *ledger.Ledger, engine *enforcement.Engine) *Generator {
	return &Generator{
		budgets: budgets,
		ledger:  entries,
		engine:  engine,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Generate builds the report for one user, or for the whole provider and
// organization scope when userID is empty (each budget then aggregates
// spend across every user it governs). periodDays selects the activity
// summary window; zero means the current calendar month. A budget that
// cannot be evaluated is skipped with a warning rather than failing the
// whole report.
func (g *Generator) Generate(ctx context.Context, userID, provider, organizationID string, periodDays int) (*Report, error) {
	now := g.now()
	out := &Report{
		UserID:        userID,
		GeneratedAt:   now,
		OverallStatus: models.StatusHealthy,
	}

	var applicable []models.BudgetLimit
	var errApplicable error
	if userID == "" {
		applicable, errApplicable = g.budgets.ScopedBudgets(ctx, provider, organizationID)
	} else {
		applicable, errApplicable = g.budgets.ApplicableBudgets(ctx, userID, provider, organizationID)
	}
	if errApplicable != nil {
		return nil, errApplicable
	}

	for i := range applicable {
		limit := &applicable[i]
		standing, errStanding := g.engine.StandingFor(ctx, limit, userID)
		if errStanding != nil {
			log.WithError(errStanding).Warnf("report: skipping budget %d (%s)", limit.ID, limit.Name)
			continue
		}
		out.Budgets = append(out.Budgets, standing)
		if standing.Status.Rank() > out.OverallStatus.Rank() {
			out.OverallStatus = standing.Status
		}
		out.Recommendations = append(out.Recommendations, recommendationsFor(standing)...)
	}

	// Activity breakdown alongside the budget standings: either a trailing
	// day window or month to date.
	start, end := period.Resolve(models.PeriodMonthly, now)
	if periodDays > 0 {
		start, end = now.AddDate(0, 0, -periodDays), now
	}
	summary, errSummary := g.ledger.Summarize(ctx, ledger.SummaryQuery{
		UserID: userID,
		Start:  start,
		End:    end,
	})
	if errSummary != nil {
		return nil, errSummary
	}
	out.CurrentPeriod = summary

	return out, nil
}

// recommendationsFor derives advisory guidance from one budget's standing.
func recommendationsFor(standing enforcement.Standing) []string {
	var recs []string
	if standing.UsagePct > 90 {
		recs = append(recs, fmt.Sprintf(
			"budget %q is at %.1f%% of its limit: review recent usage for optimization opportunities",
			standing.BudgetName, standing.UsagePct))
	}
	if standing.ForecastEndMicros > standing.AmountMicros {
		overageMicros := standing.ForecastEndMicros - standing.AmountMicros
		recs = append(recs, fmt.Sprintf(
			"budget %q is forecast to exceed its limit by $%.2f: reduce spending rate or request an increase",
			standing.BudgetName, float64(overageMicros)/1_000_000))
	}
	if standing.UsagePct < 25 {
		recs = append(recs, fmt.Sprintf(
			"budget %q is under 25%% utilized: consider reallocating part of its limit",
			standing.BudgetName))
	}
	return recs
}

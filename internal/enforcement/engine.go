// Package enforcement decides, before a provider call, whether a user may
// spend against their configured budgets.
//
// The engine is a cost control, not a security boundary: internal errors
// evaluating one budget fail open for that budget, while a threshold that
// did evaluate successfully still blocks. Absent configuration never blocks.
package enforcement

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/costfence/costfence/internal/budget"
	"github.com/costfence/costfence/internal/forecast"
	"github.com/costfence/costfence/internal/ledger"
	"github.com/costfence/costfence/internal/models"
	"github.com/costfence/costfence/internal/period"
	"github.com/costfence/costfence/internal/settings"

	log "github.com/sirupsen/logrus"
)

// DefaultCheckTimeout bounds one enforcement check. On deadline the check
// fails open: the caller is never blocked indefinitely.
const DefaultCheckTimeout = 5 * time.Second

// Decision status markers.
const (
	StatusNoBudgetsConfigured = "no_budgets_configured"
	StatusEvaluated           = "evaluated"
)

// defaultExpensiveModels is the fixed list consulted by restrict_expensive
// actions when no override is configured in settings.
var defaultExpensiveModels = []string{
	"gpt-4",
	"gpt-4-turbo",
	"gpt-4-32k",
	"o1",
	"claude-3-opus",
	"claude-opus-4",
}

// TriggeredAction is one threshold crossing with its structured reason, so
// a blocked execution is never silent.
type TriggeredAction struct {
	BudgetID     uint64              `json:"budget_id"`
	BudgetName   string              `json:"budget_name"`
	ThresholdPct int                 `json:"threshold_pct"`
	Action       models.BudgetAction `json:"action"`
	Blocks       bool                `json:"blocks"`
	Reason       string              `json:"reason"`
}

// Standing is the derived usage position of one budget. It is recomputed
// from the ledger on every evaluation and never stored.
type Standing struct {
	BudgetID          uint64                `json:"budget_id"`
	BudgetName        string                `json:"budget_name"`
	Period            models.BudgetPeriod   `json:"period"`
	PeriodStart       time.Time             `json:"period_start"`
	PeriodEnd         time.Time             `json:"period_end"`
	AmountMicros      int64                 `json:"amount_micros"`
	SpentMicros       int64                 `json:"spent_micros"`
	UsagePct          float64               `json:"usage_pct"`
	Status            models.BudgetStatus   `json:"status"`
	TriggeredActions  []models.BudgetAction `json:"triggered_actions"`
	RemainingMicros   int64                 `json:"remaining_micros"`
	ForecastEndMicros int64                 `json:"forecast_end_micros"`
	DaysRemaining     int                   `json:"days_remaining"`
}

// Decision is the outcome of one enforcement check.
type Decision struct {
	CanExecute            bool                `json:"can_execute"`
	EnforcementActions    []TriggeredAction   `json:"enforcement_actions"`
	Warnings              []string            `json:"warnings"`
	MostRestrictiveAction models.BudgetAction `json:"most_restrictive_action,omitempty"`
	BudgetStatus          string              `json:"budget_status"`
	Budgets               []Standing          `json:"budgets"`
}

// Engine evaluates enforcement checks against the budget store and ledger.
type Engine struct {
	budgets *budget.Store
	ledger  *ledger.Ledger
	timeout time.Duration
	now     func() time.Time
}

// NewEngine constructs an enforcement engine. A zero timeout selects
// DefaultCheckTimeout.
func NewEngine(budgets *budget.Store, entries *ledger.Ledger, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Engine{
		budgets: budgets,
		ledger:  entries,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// expensiveModel reports whether a model is on the expensive list.
func expensiveModel(model string) bool {
	list, ok := settings.StringsValue(settings.ExpensiveModelsKey)
	if !ok {
		list = defaultExpensiveModels
	}
	model = strings.ToLower(strings.TrimSpace(model))
	for _, candidate := range list {
		if strings.ToLower(strings.TrimSpace(candidate)) == model {
			return true
		}
	}
	return false
}

// statusForPct maps a usage percentage to a budget status.
func statusForPct(pct float64) models.BudgetStatus {
	switch {
	case pct >= 100:
		return models.StatusExceeded
	case pct >= 90:
		return models.StatusCritical
	case pct >= 75:
		return models.StatusWarning
	default:
		return models.StatusHealthy
	}
}

// Check evaluates whether userID may spend estimatedCostMicros on
// provider/model. Every applicable budget is evaluated independently; the
// overall decision blocks if any budget blocks under its own rule, and the
// most restrictive action across all budgets is reported.
func (e *Engine) Check(ctx context.Context, userID string, estimatedCostMicros int64, provider, model, organizationID string) Decision {
	decision := Decision{
		CanExecute:   true,
		BudgetStatus: StatusEvaluated,
	}
	if e == nil || e.budgets == nil || e.ledger == nil {
		decision.BudgetStatus = StatusNoBudgetsConfigured
		return decision
	}

	checkCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	applicable, errApplicable := e.budgets.ApplicableBudgets(checkCtx, userID, provider, organizationID)
	if errApplicable != nil {
		log.WithError(errApplicable).Warn("enforcement: failed to load applicable budgets, failing open")
		decision.Warnings = append(decision.Warnings, "budget configuration unavailable, allowing execution")
		return decision
	}
	if len(applicable) == 0 {
		decision.BudgetStatus = StatusNoBudgetsConfigured
		return decision
	}

	for i := range applicable {
		if checkCtx.Err() != nil {
			log.Warn("enforcement: check deadline exceeded, failing open for remaining budgets")
			decision.Warnings = append(decision.Warnings, "enforcement check timed out, remaining budgets not evaluated")
			break
		}

		limit := &applicable[i]
		standing, triggered, errEvaluate := e.evaluateBudget(checkCtx, limit, userID, model, estimatedCostMicros)
		if errEvaluate != nil {
			// Fail open for this budget only: a single unreachable budget
			// must not lock out every user, but blocks from budgets that
			// did evaluate still apply.
			log.WithError(errEvaluate).Warnf("enforcement: failed to evaluate budget %d (%s), failing open", limit.ID, limit.Name)
			decision.Warnings = append(decision.Warnings, fmt.Sprintf("budget %q could not be evaluated, not enforced", limit.Name))
			continue
		}

		decision.Budgets = append(decision.Budgets, standing)
		for _, action := range triggered {
			decision.EnforcementActions = append(decision.EnforcementActions, action)
			if action.Action == models.ActionWarnOnly {
				decision.Warnings = append(decision.Warnings, action.Reason)
			}
			if action.Blocks {
				decision.CanExecute = false
			}
			if action.Action.Severity() > decision.MostRestrictiveAction.Severity() {
				decision.MostRestrictiveAction = action.Action
			}
		}
	}

	return decision
}

// evaluateBudget computes one budget's standing and the actions triggered by
// the prospective spend.
func (e *Engine) evaluateBudget(ctx context.Context, limit *models.BudgetLimit, userID, model string, estimatedCostMicros int64) (Standing, []TriggeredAction, error) {
	now := e.now()
	start, end := period.Resolve(limit.Period, now)

	spent, errSpend := e.ledger.SpendMicros(ctx, userID, start, end)
	if errSpend != nil {
		return Standing{}, nil, errSpend
	}

	standing := e.buildStanding(limit, spent, start, end, now)

	projected := spent + estimatedCostMicros
	projectedPct := float64(projected) / float64(limit.AmountMicros) * 100

	var triggered []TriggeredAction
	for _, thresholdPct := range limit.Actions.Thresholds() {
		if projectedPct < float64(thresholdPct) {
			continue
		}
		action, ok := limit.Actions.ActionFor(thresholdPct)
		if !ok {
			continue
		}

		blocks, reason, errResolve := e.resolveBlocking(ctx, limit, userID, model, action, thresholdPct, projectedPct)
		if errResolve != nil {
			return Standing{}, nil, errResolve
		}
		triggered = append(triggered, TriggeredAction{
			BudgetID:     limit.ID,
			BudgetName:   limit.Name,
			ThresholdPct: thresholdPct,
			Action:       action,
			Blocks:       blocks,
			Reason:       reason,
		})
	}

	return standing, triggered, nil
}

// resolveBlocking applies each action's own blocking rule.
func (e *Engine) resolveBlocking(ctx context.Context, limit *models.BudgetLimit, userID, model string, action models.BudgetAction, thresholdPct int, projectedPct float64) (bool, string, error) {
	describe := func(outcome string) string {
		return fmt.Sprintf("budget %q: projected spend %.1f%% crosses %d%% threshold (%s): %s",
			limit.Name, projectedPct, thresholdPct, action, outcome)
	}

	switch action {
	case models.ActionWarnOnly:
		return false, describe("warning only"), nil
	case models.ActionRestrictExpensive:
		if expensiveModel(model) {
			return true, describe(fmt.Sprintf("model %q is on the expensive list", model)), nil
		}
		return false, describe(fmt.Sprintf("model %q is not on the expensive list", model)), nil
	case models.ActionRestrictAll:
		return true, describe("all executions restricted"), nil
	case models.ActionRequireApproval:
		override, errOverride := e.budgets.CheckOverride(ctx, limit.ID, userID)
		if errOverride != nil {
			return false, "", errOverride
		}
		if override != nil {
			return false, describe(fmt.Sprintf("approval satisfied by override %d", override.ID)), nil
		}
		return true, describe("administrator approval required"), nil
	case models.ActionBlockExecution:
		// Hard stops ignore overrides.
		return true, describe("execution blocked"), nil
	default:
		return false, describe("unknown action ignored"), nil
	}
}

// buildStanding derives a budget's current usage position from spend alone,
// without the prospective cost.
func (e *Engine) buildStanding(limit *models.BudgetLimit, spentMicros int64, start, end, now time.Time) Standing {
	usagePct := float64(spentMicros) / float64(limit.AmountMicros) * 100
	status := statusForPct(usagePct)

	var current []models.BudgetAction
	for _, thresholdPct := range limit.Actions.Thresholds() {
		if usagePct < float64(thresholdPct) {
			continue
		}
		if action, ok := limit.Actions.ActionFor(thresholdPct); ok {
			current = append(current, action)
			if action == models.ActionRestrictAll || action == models.ActionBlockExecution {
				status = models.StatusSuspended
			}
		}
	}

	return Standing{
		BudgetID:          limit.ID,
		BudgetName:        limit.Name,
		Period:            limit.Period,
		PeriodStart:       start,
		PeriodEnd:         end,
		AmountMicros:      limit.AmountMicros,
		SpentMicros:       spentMicros,
		UsagePct:          usagePct,
		Status:            status,
		TriggeredActions:  current,
		RemainingMicros:   limit.AmountMicros - spentMicros,
		ForecastEndMicros: forecast.EndOfPeriodMicros(spentMicros, start, end, now),
		DaysRemaining:     int(math.Ceil(end.Sub(now).Hours() / 24)),
	}
}

// StandingFor exposes one budget's derived usage for reporting. An empty
// userID aggregates spend across every user the budget governs.
func (e *Engine) StandingFor(ctx context.Context, limit *models.BudgetLimit, userID string) (Standing, error) {
	now := e.now()
	start, end := period.Resolve(limit.Period, now)

	var spent int64
	var errSpend error
	if userID == "" {
		spent, errSpend = e.ledger.ScopeSpendMicros(ctx, limit.AppliesTo.ConstrainedUsers(), start, end)
	} else {
		spent, errSpend = e.ledger.SpendMicros(ctx, userID, start, end)
	}
	if errSpend != nil {
		return Standing{}, errSpend
	}
	return e.buildStanding(limit, spent, start, end, now), nil
}

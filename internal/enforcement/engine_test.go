package enforcement

import (
	"context"
	"testing"
	"time"

	"github.com/costfence/costfence/internal/budget"
	"github.com/costfence/costfence/internal/db"
	"github.com/costfence/costfence/internal/ledger"
	"github.com/costfence/costfence/internal/models"
)

const dollar = 1_000_000

type testEnv struct {
	budgets *budget.Store
	ledger  *ledger.Ledger
	engine  *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	budgets := budget.NewStore(conn)
	entries := ledger.New(conn)
	return &testEnv{
		budgets: budgets,
		ledger:  entries,
		engine:  NewEngine(budgets, entries, 0),
	}
}

func (env *testEnv) createLimit(t *testing.T, params budget.CreateLimitParams) *models.BudgetLimit {
	t.Helper()
	limit, errCreate := env.budgets.CreateLimit(context.Background(), params)
	if errCreate != nil {
		t.Fatalf("create limit: %v", errCreate)
	}
	return limit
}

func (env *testEnv) recordSpend(t *testing.T, userID string, costMicros int64) {
	t.Helper()
	errRecord := env.ledger.RecordEntry(context.Background(), &models.CostEntry{
		UserID:          userID,
		Provider:        "openai",
		Model:           "gpt-4",
		TotalCostMicros: costMicros,
		RequestedAt:     time.Now().UTC(),
	})
	if errRecord != nil {
		t.Fatalf("record entry: %v", errRecord)
	}
}

func approvalGateParams(name string) budget.CreateLimitParams {
	return budget.CreateLimitParams{
		Name:                 name,
		AmountMicros:         100 * dollar,
		Period:               models.PeriodMonthly,
		ThresholdPercentages: models.ThresholdList{90, 100},
		Actions: models.ActionMap{
			"90":  models.ActionRequireApproval,
			"100": models.ActionBlockExecution,
		},
		IsActive: true,
	}
}

func TestCheckRequireApprovalBlocksWithoutOverride(t *testing.T) {
	env := newTestEnv(t)
	limit := env.createLimit(t, approvalGateParams("monthly-approval"))
	env.recordSpend(t, "alice", 85*dollar)

	// Projected 95%: only the 90% require_approval threshold fires.
	decision := env.engine.Check(context.Background(), "alice", 10*dollar, "openai", "gpt-3.5-turbo", "")
	if decision.CanExecute {
		t.Fatal("expected execution blocked pending approval")
	}
	if decision.MostRestrictiveAction != models.ActionRequireApproval {
		t.Fatalf("most restrictive action = %q, want require_approval", decision.MostRestrictiveAction)
	}
	if len(decision.EnforcementActions) != 1 || decision.EnforcementActions[0].ThresholdPct != 90 {
		t.Fatalf("unexpected enforcement actions: %+v", decision.EnforcementActions)
	}

	_, errOverride := env.budgets.CreateOverride(context.Background(), budget.CreateOverrideParams{
		BudgetID:     limit.ID,
		UserID:       "alice",
		AdminUserID:  "root",
		OverrideType: models.OverrideBypassApproval,
		Reason:       "quarter-end close",
	})
	if errOverride != nil {
		t.Fatalf("create override: %v", errOverride)
	}

	decision = env.engine.Check(context.Background(), "alice", 10*dollar, "openai", "gpt-3.5-turbo", "")
	if !decision.CanExecute {
		t.Fatalf("expected override to satisfy approval, got %+v", decision.EnforcementActions)
	}
}

func TestCheckBlockExecutionIgnoresOverride(t *testing.T) {
	env := newTestEnv(t)
	limit := env.createLimit(t, approvalGateParams("monthly-hard-stop"))
	env.recordSpend(t, "alice", 85*dollar)

	_, errOverride := env.budgets.CreateOverride(context.Background(), budget.CreateOverrideParams{
		BudgetID:     limit.ID,
		UserID:       "alice",
		AdminUserID:  "root",
		OverrideType: models.OverrideBypassApproval,
		Reason:       "quarter-end close",
	})
	if errOverride != nil {
		t.Fatalf("create override: %v", errOverride)
	}

	// Projected 105%: block_execution fires and the override does not help.
	decision := env.engine.Check(context.Background(), "alice", 20*dollar, "openai", "gpt-3.5-turbo", "")
	if decision.CanExecute {
		t.Fatal("expected hard stop despite override")
	}
	if decision.MostRestrictiveAction != models.ActionBlockExecution {
		t.Fatalf("most restrictive action = %q, want block_execution", decision.MostRestrictiveAction)
	}
}

func TestCheckRestrictAllAtNinetyPercent(t *testing.T) {
	env := newTestEnv(t)
	env.createLimit(t, budget.CreateLimitParams{
		Name:                 "daily-cap",
		AmountMicros:         50 * dollar,
		Period:               models.PeriodDaily,
		ThresholdPercentages: models.ThresholdList{75, 90},
		Actions: models.ActionMap{
			"75": models.ActionWarnOnly,
			"90": models.ActionRestrictAll,
		},
		IsActive: true,
	})
	env.recordSpend(t, "bob", 40*dollar)

	// Projected exactly 90%: both thresholds fire, restrict_all blocks.
	decision := env.engine.Check(context.Background(), "bob", 5*dollar, "openai", "gpt-3.5-turbo", "")
	if decision.CanExecute {
		t.Fatal("expected restrict_all to block at 90%")
	}
	if decision.MostRestrictiveAction != models.ActionRestrictAll {
		t.Fatalf("most restrictive action = %q, want restrict_all", decision.MostRestrictiveAction)
	}
	if len(decision.Warnings) == 0 {
		t.Fatal("expected the warn_only crossing to surface a warning")
	}
}

func TestCheckAllowsBelowAllThresholds(t *testing.T) {
	env := newTestEnv(t)
	env.createLimit(t, budget.CreateLimitParams{
		Name:                 "daily-cap",
		AmountMicros:         50 * dollar,
		Period:               models.PeriodDaily,
		ThresholdPercentages: models.ThresholdList{75, 90},
		Actions: models.ActionMap{
			"75": models.ActionWarnOnly,
			"90": models.ActionRestrictAll,
		},
		IsActive: true,
	})
	env.recordSpend(t, "bob", 30*dollar)

	// Projected 70%: below every threshold.
	decision := env.engine.Check(context.Background(), "bob", 5*dollar, "openai", "gpt-3.5-turbo", "")
	if !decision.CanExecute {
		t.Fatalf("expected execution allowed, got %+v", decision.EnforcementActions)
	}
	if len(decision.EnforcementActions) != 0 || len(decision.Warnings) != 0 {
		t.Fatalf("expected no actions or warnings, got %+v / %v", decision.EnforcementActions, decision.Warnings)
	}
	if decision.BudgetStatus != StatusEvaluated {
		t.Fatalf("budget status = %q, want %q", decision.BudgetStatus, StatusEvaluated)
	}
}

func TestCheckDefaultAllowWithoutBudgets(t *testing.T) {
	env := newTestEnv(t)

	decision := env.engine.Check(context.Background(), "carol", 500*dollar, "openai", "gpt-4", "")
	if !decision.CanExecute {
		t.Fatal("expected default allow with no budgets configured")
	}
	if decision.BudgetStatus != StatusNoBudgetsConfigured {
		t.Fatalf("budget status = %q, want %q", decision.BudgetStatus, StatusNoBudgetsConfigured)
	}
}

func TestCheckRestrictExpensiveBlocksOnlyExpensiveModels(t *testing.T) {
	env := newTestEnv(t)
	env.createLimit(t, budget.CreateLimitParams{
		Name:                 "expensive-gate",
		AmountMicros:         100 * dollar,
		Period:               models.PeriodMonthly,
		ThresholdPercentages: models.ThresholdList{80},
		Actions: models.ActionMap{
			"80": models.ActionRestrictExpensive,
		},
		IsActive: true,
	})
	env.recordSpend(t, "dave", 85*dollar)

	decision := env.engine.Check(context.Background(), "dave", 1*dollar, "openai", "gpt-4", "")
	if decision.CanExecute {
		t.Fatal("expected gpt-4 blocked by restrict_expensive")
	}

	decision = env.engine.Check(context.Background(), "dave", 1*dollar, "openai", "gpt-3.5-turbo", "")
	if !decision.CanExecute {
		t.Fatalf("expected gpt-3.5-turbo allowed, got %+v", decision.EnforcementActions)
	}
	if len(decision.EnforcementActions) != 1 || decision.EnforcementActions[0].Blocks {
		t.Fatalf("expected a non-blocking crossing to be reported, got %+v", decision.EnforcementActions)
	}
}

func TestCheckFailsOpenWhenBudgetCannotBeEvaluated(t *testing.T) {
	env := newTestEnv(t)
	env.createLimit(t, approvalGateParams("monthly-approval"))
	env.recordSpend(t, "alice", 95*dollar)

	// A ledger without a database makes every spend query fail, which must
	// fail open rather than lock the user out.
	broken := NewEngine(env.budgets, ledger.New(nil), 0)
	decision := broken.Check(context.Background(), "alice", 10*dollar, "openai", "gpt-4", "")
	if !decision.CanExecute {
		t.Fatal("expected fail open when a budget cannot be evaluated")
	}
	if len(decision.Warnings) == 0 {
		t.Fatal("expected a warning about the unevaluated budget")
	}
}

func TestCheckFailsOpenOnDeadline(t *testing.T) {
	env := newTestEnv(t)
	env.createLimit(t, approvalGateParams("monthly-approval"))
	env.recordSpend(t, "alice", 95*dollar)

	expired, cancel := context.WithCancel(context.Background())
	cancel()

	decision := env.engine.Check(expired, "alice", 10*dollar, "openai", "gpt-4", "")
	if !decision.CanExecute {
		t.Fatal("expected fail open on expired context")
	}
}

func TestStandingReflectsCurrentSpendOnly(t *testing.T) {
	env := newTestEnv(t)
	limit := env.createLimit(t, approvalGateParams("monthly-approval"))
	env.recordSpend(t, "alice", 50*dollar)

	standing, errStanding := env.engine.StandingFor(context.Background(), limit, "alice")
	if errStanding != nil {
		t.Fatalf("standing: %v", errStanding)
	}
	if standing.SpentMicros != 50*dollar {
		t.Fatalf("spent = %d, want %d", standing.SpentMicros, 50*dollar)
	}
	if standing.UsagePct != 50 {
		t.Fatalf("usage pct = %v, want 50", standing.UsagePct)
	}
	if standing.Status != models.StatusHealthy {
		t.Fatalf("status = %q, want healthy", standing.Status)
	}
	if standing.RemainingMicros != 50*dollar {
		t.Fatalf("remaining = %d, want %d", standing.RemainingMicros, 50*dollar)
	}
	if standing.ForecastEndMicros < standing.SpentMicros {
		t.Fatalf("forecast %d below current spend %d", standing.ForecastEndMicros, standing.SpentMicros)
	}
}

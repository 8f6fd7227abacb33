package budget

import (
	"context"
	"testing"
	"time"

	"github.com/costfence/costfence/internal/db"
	"github.com/costfence/costfence/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return NewStore(conn)
}

func dailyLimitParams(name string) CreateLimitParams {
	return CreateLimitParams{
		Name:                 name,
		AmountMicros:         50_000_000,
		Period:               models.PeriodDaily,
		ThresholdPercentages: models.ThresholdList{75, 90},
		Actions: models.ActionMap{
			"75": models.ActionWarnOnly,
			"90": models.ActionRestrictAll,
		},
		IsActive: true,
	}
}

func TestCreateLimitRejectsMalformedConfiguration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateLimitParams)
	}{
		{"empty name", func(p *CreateLimitParams) { p.Name = " " }},
		{"zero amount", func(p *CreateLimitParams) { p.AmountMicros = 0 }},
		{"bad period", func(p *CreateLimitParams) { p.Period = "fortnightly" }},
		{"descending thresholds", func(p *CreateLimitParams) { p.ThresholdPercentages = models.ThresholdList{90, 75} }},
		{"threshold above 100", func(p *CreateLimitParams) { p.ThresholdPercentages = models.ThresholdList{75, 150} }},
		{"action on unconfigured threshold", func(p *CreateLimitParams) {
			p.Actions = models.ActionMap{"80": models.ActionWarnOnly}
		}},
		{"unknown action", func(p *CreateLimitParams) {
			p.Actions = models.ActionMap{"75": "nuke_from_orbit"}
		}},
	}
	for _, tc := range cases {
		params := dailyLimitParams("limit-" + tc.name)
		tc.mutate(&params)
		if _, errCreate := store.CreateLimit(ctx, params); errCreate == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestCreateLimitAllowsImplicitHundredAction(t *testing.T) {
	store := newTestStore(t)

	params := dailyLimitParams("hundred")
	params.Actions = models.ActionMap{
		"90":  models.ActionRequireApproval,
		"100": models.ActionBlockExecution,
	}
	params.ThresholdPercentages = models.ThresholdList{90}

	if _, errCreate := store.CreateLimit(context.Background(), params); errCreate != nil {
		t.Fatalf("create limit: %v", errCreate)
	}
}

func TestApplicableBudgetsDimensionsCombineWithAND(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	unconstrained := dailyLimitParams("everyone")
	userScoped := dailyLimitParams("u1-only")
	userScoped.AppliesTo = models.AppliesTo{Users: []string{"u1"}}
	pairScoped := dailyLimitParams("u1-openai")
	pairScoped.AppliesTo = models.AppliesTo{Users: []string{"u1"}, Providers: []string{"openai"}}
	orgScoped := dailyLimitParams("org-acme")
	orgScoped.AppliesTo = models.AppliesTo{Organizations: []string{"acme"}}
	allSentinel := dailyLimitParams("all-sentinel")
	allSentinel.AppliesTo = models.AppliesTo{Users: []string{"all"}}
	inactive := dailyLimitParams("inactive")
	inactive.IsActive = false

	for _, params := range []CreateLimitParams{unconstrained, userScoped, pairScoped, orgScoped, allSentinel, inactive} {
		if _, errCreate := store.CreateLimit(ctx, params); errCreate != nil {
			t.Fatalf("create %s: %v", params.Name, errCreate)
		}
	}

	names := func(budgets []models.BudgetLimit) map[string]bool {
		out := map[string]bool{}
		for _, b := range budgets {
			out[b.Name] = true
		}
		return out
	}

	got, errApplicable := store.ApplicableBudgets(ctx, "u1", "openai", "acme")
	if errApplicable != nil {
		t.Fatalf("applicable: %v", errApplicable)
	}
	matched := names(got)
	for _, want := range []string{"everyone", "u1-only", "u1-openai", "org-acme", "all-sentinel"} {
		if !matched[want] {
			t.Fatalf("expected %s to apply, got %v", want, matched)
		}
	}
	if matched["inactive"] {
		t.Fatalf("inactive budget must never apply")
	}

	got, errApplicable = store.ApplicableBudgets(ctx, "u1", "anthropic", "")
	if errApplicable != nil {
		t.Fatalf("applicable: %v", errApplicable)
	}
	matched = names(got)
	if matched["u1-openai"] {
		t.Fatalf("provider-scoped budget applied to wrong provider")
	}
	if matched["org-acme"] {
		t.Fatalf("org-scoped budget applied without an organization")
	}
	if !matched["u1-only"] || !matched["everyone"] {
		t.Fatalf("expected user-scoped and unconstrained budgets, got %v", matched)
	}

	got, errApplicable = store.ApplicableBudgets(ctx, "u2", "openai", "")
	if errApplicable != nil {
		t.Fatalf("applicable: %v", errApplicable)
	}
	matched = names(got)
	if matched["u1-only"] || matched["u1-openai"] {
		t.Fatalf("u1 budgets applied to u2: %v", matched)
	}
}

func TestCheckOverrideLazyExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	limit, errCreate := store.CreateLimit(ctx, dailyLimitParams("expiring"))
	if errCreate != nil {
		t.Fatalf("create limit: %v", errCreate)
	}

	if _, errOverride := store.CreateOverride(ctx, CreateOverrideParams{
		BudgetID:     limit.ID,
		UserID:       "u1",
		AdminUserID:  "admin",
		OverrideType: models.OverrideBypassApproval,
		Reason:       "incident mitigation",
		TTL:          time.Millisecond,
	}); errOverride != nil {
		t.Fatalf("create override: %v", errOverride)
	}

	time.Sleep(5 * time.Millisecond)

	got, errCheck := store.CheckOverride(ctx, limit.ID, "u1")
	if errCheck != nil {
		t.Fatalf("check override: %v", errCheck)
	}
	if got != nil {
		t.Fatalf("expected expired override to be filtered, got %+v", got)
	}

	// Lazy expiry deactivates the stored row, so a second check stays empty.
	again, errAgain := store.CheckOverride(ctx, limit.ID, "u1")
	if errAgain != nil {
		t.Fatalf("second check: %v", errAgain)
	}
	if again != nil {
		t.Fatalf("expected deactivated override to stay filtered")
	}
}

func TestCreateOverrideSupersedesPriorActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	limit, errCreate := store.CreateLimit(ctx, dailyLimitParams("superseded"))
	if errCreate != nil {
		t.Fatalf("create limit: %v", errCreate)
	}

	first, errFirst := store.CreateOverride(ctx, CreateOverrideParams{
		BudgetID:       limit.ID,
		UserID:         "u1",
		AdminUserID:    "admin",
		OverrideType:   models.OverrideTemporaryIncrease,
		NewLimitMicros: 100_000_000,
		Reason:         "quarter close",
	})
	if errFirst != nil {
		t.Fatalf("first override: %v", errFirst)
	}

	second, errSecond := store.CreateOverride(ctx, CreateOverrideParams{
		BudgetID:       limit.ID,
		UserID:         "u1",
		AdminUserID:    "admin",
		OverrideType:   models.OverrideBypassApproval,
		NewLimitMicros: 0,
		Reason:         "escalation approved",
	})
	if errSecond != nil {
		t.Fatalf("second override: %v", errSecond)
	}

	got, errCheck := store.CheckOverride(ctx, limit.ID, "u1")
	if errCheck != nil {
		t.Fatalf("check override: %v", errCheck)
	}
	if got == nil {
		t.Fatalf("expected an active override")
	}
	if got.ID != second.ID {
		t.Fatalf("expected newest override %d, got %d", second.ID, got.ID)
	}
	if got.ID == first.ID {
		t.Fatalf("superseded override still returned")
	}
	if got.OriginalLimitMicros != limit.AmountMicros {
		t.Fatalf("expected original limit snapshot %d, got %d", limit.AmountMicros, got.OriginalLimitMicros)
	}
}

func TestCheckOverrideDistinctUsersDoNotInterfere(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	limit, errCreate := store.CreateLimit(ctx, dailyLimitParams("multiuser"))
	if errCreate != nil {
		t.Fatalf("create limit: %v", errCreate)
	}

	if _, errOverride := store.CreateOverride(ctx, CreateOverrideParams{
		BudgetID:     limit.ID,
		UserID:       "u1",
		AdminUserID:  "admin",
		OverrideType: models.OverrideBypassApproval,
		Reason:       "u1 approved",
	}); errOverride != nil {
		t.Fatalf("create override: %v", errOverride)
	}

	got, errCheck := store.CheckOverride(ctx, limit.ID, "u2")
	if errCheck != nil {
		t.Fatalf("check override: %v", errCheck)
	}
	if got != nil {
		t.Fatalf("u2 must not inherit u1's override")
	}
}

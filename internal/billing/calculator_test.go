package billing

import (
	"context"
	"testing"

	"github.com/costfence/costfence/internal/db"
)

func newTestTable() *Table {
	table := NewTable()
	table.Replace(map[string]Price{
		priceKey("openai", "gpt-4"):    {InputMicrosPer1K: 30_000, OutputMicrosPer1K: 60_000},
		priceKey("openai", "gpt-4o"):   {InputMicrosPer1K: 2_500, OutputMicrosPer1K: 10_000},
		priceKey("anthropic", "claude-3-haiku"): {InputMicrosPer1K: 250, OutputMicrosPer1K: 1_250},
	})
	return table
}

func TestCostTotalIsInputPlusOutput(t *testing.T) {
	calc := NewCalculator(newTestTable())

	cases := []struct {
		provider, model    string
		prompt, completion int64
	}{
		{"openai", "gpt-4", 1000, 500},
		{"openai", "gpt-4o", 123, 4567},
		{"anthropic", "claude-3-haiku", 1, 1},
		{"anthropic", "claude-3-haiku", 0, 0},
	}
	for _, tc := range cases {
		cost := calc.Cost(tc.provider, tc.model, tc.prompt, tc.completion)
		if cost.TotalMicros != cost.InputMicros+cost.OutputMicros {
			t.Fatalf("%s/%s: total %d != input %d + output %d", tc.provider, tc.model, cost.TotalMicros, cost.InputMicros, cost.OutputMicros)
		}
	}
}

func TestCostKnownValues(t *testing.T) {
	calc := NewCalculator(newTestTable())

	// 1000 prompt + 500 completion tokens of gpt-4: $0.03 + $0.03.
	cost := calc.Cost("openai", "gpt-4", 1000, 500)
	if cost.InputMicros != 30_000 {
		t.Fatalf("expected input 30000 micros, got %d", cost.InputMicros)
	}
	if cost.OutputMicros != 30_000 {
		t.Fatalf("expected output 30000 micros, got %d", cost.OutputMicros)
	}
	if cost.TotalMicros != 60_000 {
		t.Fatalf("expected total 60000 micros, got %d", cost.TotalMicros)
	}
}

func TestCostRoundsHalfUp(t *testing.T) {
	table := NewTable()
	table.Replace(map[string]Price{
		priceKey("p", "m"): {InputMicrosPer1K: 1, OutputMicrosPer1K: 3},
	})
	calc := NewCalculator(table)

	// 500 tokens at 1 micro per 1K is exactly 0.5 micros: rounds up to 1.
	cost := calc.Cost("p", "m", 500, 0)
	if cost.InputMicros != 1 {
		t.Fatalf("expected half-up rounding to 1 micro, got %d", cost.InputMicros)
	}

	// 100 tokens at 3 micros per 1K is 0.3 micros: rounds down to 0.
	cost = calc.Cost("p", "m", 0, 100)
	if cost.OutputMicros != 0 {
		t.Fatalf("expected 0 micros, got %d", cost.OutputMicros)
	}
}

func TestCostMonotonicInTokenCounts(t *testing.T) {
	calc := NewCalculator(newTestTable())

	prev := int64(-1)
	for tokens := int64(0); tokens <= 5000; tokens += 137 {
		cost := calc.Cost("openai", "gpt-4o", tokens, tokens)
		if cost.TotalMicros < prev {
			t.Fatalf("cost decreased at %d tokens: %d < %d", tokens, cost.TotalMicros, prev)
		}
		prev = cost.TotalMicros
	}
}

func TestCostMissingPricingIsZeroAndFlagged(t *testing.T) {
	calc := NewCalculator(newTestTable())

	cost := calc.Cost("openai", "gpt-unknown", 1000, 1000)
	if !cost.PricingMissing {
		t.Fatalf("expected pricing missing flag")
	}
	if cost.TotalMicros != 0 || cost.InputMicros != 0 || cost.OutputMicros != 0 {
		t.Fatalf("expected zero cost, got %+v", cost)
	}
}

func TestTableReloadReplacesSnapshot(t *testing.T) {
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}

	ctx := context.Background()
	if errSeed := SeedDefaultPrices(ctx, conn); errSeed != nil {
		t.Fatalf("seed prices: %v", errSeed)
	}

	table := NewTable()
	if errReload := table.Reload(ctx, conn); errReload != nil {
		t.Fatalf("reload: %v", errReload)
	}
	if table.Len() == 0 {
		t.Fatalf("expected seeded snapshot, got empty table")
	}

	price, ok := table.Lookup("OpenAI", "GPT-4")
	if !ok {
		t.Fatalf("expected case-insensitive lookup to hit")
	}
	if price.InputMicrosPer1K != 30_000 {
		t.Fatalf("unexpected gpt-4 input price %d", price.InputMicrosPer1K)
	}

	// Seeding again must not duplicate rows.
	if errSeed := SeedDefaultPrices(ctx, conn); errSeed != nil {
		t.Fatalf("second seed: %v", errSeed)
	}
	if errReload := table.Reload(ctx, conn); errReload != nil {
		t.Fatalf("second reload: %v", errReload)
	}
	if table.Len() != len(defaultPrices) {
		t.Fatalf("expected %d prices, got %d", len(defaultPrices), table.Len())
	}
}

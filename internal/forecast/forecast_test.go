package forecast

import (
	"testing"
	"time"
)

var periodStart = time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
var periodEnd = periodStart.AddDate(0, 0, 10)

func TestForecastAtPeriodStartReturnsCurrentSpend(t *testing.T) {
	got := EndOfPeriodMicros(42_000_000, periodStart, periodEnd, periodStart)
	if got != 42_000_000 {
		t.Fatalf("expected current spend unchanged at period start, got %d", got)
	}
}

func TestForecastAfterPeriodEndReturnsCurrentSpend(t *testing.T) {
	got := EndOfPeriodMicros(42_000_000, periodStart, periodEnd, periodEnd.Add(time.Hour))
	if got != 42_000_000 {
		t.Fatalf("expected current spend unchanged after period end, got %d", got)
	}
}

func TestForecastLinearExtrapolation(t *testing.T) {
	// Halfway through the period at $10 spent projects to $20.
	halfway := periodStart.Add(periodEnd.Sub(periodStart) / 2)
	got := EndOfPeriodMicros(10_000_000, periodStart, periodEnd, halfway)
	if got != 20_000_000 {
		t.Fatalf("expected 20000000 micros, got %d", got)
	}

	// One day into ten at $5 spent projects to $50.
	got = EndOfPeriodMicros(5_000_000, periodStart, periodEnd, periodStart.AddDate(0, 0, 1))
	if got != 50_000_000 {
		t.Fatalf("expected 50000000 micros, got %d", got)
	}
}

func TestForecastZeroSpendStaysZero(t *testing.T) {
	got := EndOfPeriodMicros(0, periodStart, periodEnd, periodStart.AddDate(0, 0, 3))
	if got != 0 {
		t.Fatalf("expected zero forecast for zero spend, got %d", got)
	}
}

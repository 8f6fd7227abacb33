// Package forecast extrapolates current spend to the end of a budget
// period. The model is a deliberately simple linear burn rate, not a
// prediction guarantee.
package forecast

import "time"

// EndOfPeriodMicros projects total spend at period end from the spend so
// far: rate = spend / elapsed hours, forecast = spend + rate * remaining
// hours. At the very start of a period, or after it has ended, the current
// spend is returned unchanged.
func EndOfPeriodMicros(currentSpendMicros int64, periodStart, periodEnd, now time.Time) int64 {
	elapsed := now.Sub(periodStart).Hours()
	remaining := periodEnd.Sub(now).Hours()
	if elapsed <= 0 || remaining <= 0 {
		return currentSpendMicros
	}

	rate := float64(currentSpendMicros) / elapsed
	return currentSpendMicros + int64(rate*remaining+0.5)
}

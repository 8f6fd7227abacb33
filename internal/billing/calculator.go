// Package billing converts token counts into monetary cost.
//
// All amounts are int64 micro-dollars. Using a single integer fixed-point
// representation end to end keeps repeated ledger additions exact; rounding
// happens once, when a token count meets a per-1000-token price.
package billing

import (
	log "github.com/sirupsen/logrus"
)

// Cost is the monetary breakdown of one provider call.
type Cost struct {
	InputMicros    int64 // Prompt cost.
	OutputMicros   int64 // Completion cost.
	TotalMicros    int64 // Always InputMicros + OutputMicros.
	PricingMissing bool  // Set when no pricing row covered the call.
}

// Calculator prices provider calls against the pricing table.
type Calculator struct {
	table *Table
}

// NewCalculator constructs a Calculator over a pricing table.
func NewCalculator(table *Table) *Calculator {
	return &Calculator{table: table}
}

// tokenCostMicros prices a token count at a per-1000-token rate, rounding
// half-up to the nearest micro-dollar.
func tokenCostMicros(tokens, micros1K int64) int64 {
	if tokens <= 0 || micros1K <= 0 {
		return 0
	}
	return (tokens*micros1K + 500) / 1000
}

// Cost prices a call. A missing pricing entry yields zero cost and flags the
// result for audit rather than failing the call: execution is never blocked
// solely for missing metadata.
func (c *Calculator) Cost(provider, model string, promptTokens, completionTokens int64) Cost {
	if c == nil || c.table == nil {
		return Cost{PricingMissing: true}
	}

	price, ok := c.table.Lookup(provider, model)
	if !ok {
		log.Warnf("billing: no pricing entry for %s/%s, recording zero cost", provider, model)
		return Cost{PricingMissing: true}
	}

	input := tokenCostMicros(promptTokens, price.InputMicrosPer1K)
	output := tokenCostMicros(completionTokens, price.OutputMicrosPer1K)
	return Cost{
		InputMicros:  input,
		OutputMicros: output,
		TotalMicros:  input + output,
	}
}

package costs

import (
	"math"

	"github.com/shopspring/decimal"
)

// Config carries the fee and slippage knobs applied to simulated fills.
// Bps values are basis points of notional.
type Config struct {
	FeesEnabled     bool
	TakerFeeBps     float64
	SlippageEnabled bool
	EntrySlipBps    float64
	ExitSlipBps     float64
}

// Overrides lets a caller substitute dynamic bps values for a single call
// without touching the configured defaults. Nil fields keep the config value.
type Overrides struct {
	TakerFeeBps  *float64
	EntrySlipBps *float64
	ExitSlipBps  *float64
}

// Breakdown is the itemized cost of a round trip on a given notional.
type Breakdown struct {
	FeesUsd     float64
	SlippageUsd float64
	TotalUsd    float64
}

// ShortUnleveredReturnPct is the percentage a short gains when price moves
// from entry to exit: (entry - exit) / entry * 100. Non-finite or
// non-positive prices yield 0, never an error.
func ShortUnleveredReturnPct(entry, exit float64) float64 {
	if !isPositiveFinite(entry) || !isPositiveFinite(exit) {
		return 0
	}
	return (entry - exit) / entry * 100
}

// LeveragedReturnPct scales an unlevered percentage by leverage.
func LeveragedReturnPct(unleveredPct, leverage float64) float64 {
	return unleveredPct * leverage
}

// QtyFromNotional converts quote notional to base quantity at a price.
// Non-positive or non-finite inputs yield 0.
func QtyFromNotional(notional, price float64) float64 {
	if !isPositiveFinite(notional) || !isPositiveFinite(price) {
		return 0
	}
	return notional / price
}

// PnlUsdFromUnleveredPct converts an unlevered return percentage into a USD
// PnL for a given margin and leverage.
func PnlUsdFromUnleveredPct(margin, leverage, unleveredPct float64) float64 {
	return margin * leverage * unleveredPct / 100
}

// LiquidationThresholdUnleveredPct is the unlevered loss percentage at which
// margin is exhausted for a short: -(100/leverage). Non-positive leverage
// collapses to -100.
func LiquidationThresholdUnleveredPct(leverage float64) float64 {
	if !isPositiveFinite(leverage) {
		return -100
	}
	return -(100 / leverage)
}

// ApplyCosts itemizes the fee and slippage cost of a round trip on the given
// notional. Taker fee is charged on both entry and exit. Bps arithmetic runs
// through decimal so configured rates convert exactly.
func ApplyCosts(notional float64, cfg Config, ov *Overrides) Breakdown {
	if !isPositiveFinite(notional) {
		return Breakdown{}
	}

	feeBps := cfg.TakerFeeBps
	entryBps := cfg.EntrySlipBps
	exitBps := cfg.ExitSlipBps
	if ov != nil {
		if ov.TakerFeeBps != nil {
			feeBps = *ov.TakerFeeBps
		}
		if ov.EntrySlipBps != nil {
			entryBps = *ov.EntrySlipBps
		}
		if ov.ExitSlipBps != nil {
			exitBps = *ov.ExitSlipBps
		}
	}

	n := decimal.NewFromFloat(notional)
	tenThousand := decimal.NewFromInt(10000)

	var out Breakdown
	if cfg.FeesEnabled && isFinite(feeBps) {
		fee := n.Mul(decimal.NewFromFloat(feeBps)).Div(tenThousand)
		out.FeesUsd, _ = fee.Mul(decimal.NewFromInt(2)).Float64()
	}
	if cfg.SlippageEnabled && isFinite(entryBps) && isFinite(exitBps) {
		slip := n.Mul(decimal.NewFromFloat(entryBps + exitBps)).Div(tenThousand)
		out.SlippageUsd, _ = slip.Float64()
	}
	out.TotalUsd = out.FeesUsd + out.SlippageUsd

	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isPositiveFinite(v float64) bool {
	return isFinite(v) && v > 0
}

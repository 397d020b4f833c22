package engine

import (
	"context"
	"math"
	"sort"
	"time"

	logger "github.com/sirupsen/logrus"

	"papershort/src/connectors"
	"papershort/src/model"
)

// exitCandidate is one historical exit event found during reconciliation.
// Candidates are ordered by time first, then by priority so that
// simultaneous triggers resolve liquidation before take profit before delta
// before time.
type exitCandidate struct {
	at       time.Time
	price    float64
	reason   string
	priority int
}

func exitPriority(reason string) int {
	switch reason {
	case model.ExitReasonLiquidation:
		return 1
	case model.ExitReasonTakeProfit:
		return 2
	case model.ExitReasonDeltaExit:
		return 3
	default:
		return 4
	}
}

// reconcilePosition replays the window the engine was not running over and
// closes the position at the earliest exit that would have fired. Returns
// true when the position was closed. The window is clamped to the configured
// lookback cap so a long outage does not replay unbounded history.
func (e *Engine) reconcilePosition(ctx context.Context, log *logger.Entry, position *model.Position, now time.Time, lastScan time.Time) (bool, error) {
	windowStart := position.EntryAt
	if lastScan.After(windowStart) {
		windowStart = lastScan
	}
	if e.cfg.LookbackCapHours > 0 {
		capStart := now.Add(-time.Duration(e.cfg.LookbackCapHours * float64(time.Hour)))
		if capStart.After(windowStart) {
			windowStart = capStart
		}
	}
	if !windowStart.Before(now) {
		return false, nil
	}

	hours := int(now.Sub(windowStart).Hours()) + 2
	candles, err := e.market.GetHourlyCandles(ctx, position.Symbol, hours)
	if err != nil {
		return false, err
	}

	var candidates []exitCandidate

	if c := e.priceCandidate(position, candles, windowStart, now); c != nil {
		candidates = append(candidates, *c)
	}
	if c := e.timeCandidate(position, candles, windowStart, now); c != nil {
		candidates = append(candidates, *c)
	}
	deltaCand, err := e.deltaCandidate(ctx, position, candles, windowStart, now)
	if err != nil {
		// Missing ratio history degrades the replay, it does not block it.
		log.WithError(err).Warn("ratio history unavailable during reconciliation, skipping delta replay")
	} else if deltaCand != nil {
		candidates = append(candidates, *deltaCand)
	}

	if len(candidates) == 0 {
		return false, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].at.Equal(candidates[j].at) {
			return candidates[i].at.Before(candidates[j].at)
		}
		return candidates[i].priority < candidates[j].priority
	})

	winner := candidates[0]
	log.WithFields(logger.Fields{
		"reason": winner.reason,
		"at":     winner.at,
		"price":  winner.price,
	}).Info("reconciliation closing position from missed window")

	if err := e.closePosition(ctx, log, position, winner.at, winner.price, winner.reason); err != nil {
		return false, err
	}
	return true, nil
}

// priceCandidate scans candles inside the window for the first liquidation
// or take-profit touch. Within a single candle a liquidation touch wins over
// a take-profit touch: intrabar ordering is unknowable, so the conservative
// reading applies. The exit is timestamped at the candle's close, clamped to
// now, and priced at the trigger level itself.
func (e *Engine) priceCandidate(position *model.Position, candles []connectors.Candle, windowStart, now time.Time) *exitCandidate {
	liqPrice := liquidationPrice(position)
	tpPrice := takeProfitPrice(position)

	for _, c := range candles {
		closeAt := c.OpenTime.Add(time.Hour)
		if closeAt.Before(windowStart) || c.OpenTime.After(now) {
			continue
		}
		if closeAt.After(now) {
			closeAt = now
		}

		if liqPrice > 0 && c.High >= liqPrice {
			return &exitCandidate{at: closeAt, price: liqPrice, reason: model.ExitReasonLiquidation, priority: exitPriority(model.ExitReasonLiquidation)}
		}
		if tpPrice > 0 && c.Low <= tpPrice {
			return &exitCandidate{at: closeAt, price: tpPrice, reason: model.ExitReasonTakeProfit, priority: exitPriority(model.ExitReasonTakeProfit)}
		}
	}

	return nil
}

// timeCandidate fires when the position's hold deadline fell inside the
// window. The exit is priced from the candle containing the deadline, or the
// nearest earlier close, or the entry price when no history covers it.
func (e *Engine) timeCandidate(position *model.Position, candles []connectors.Candle, windowStart, now time.Time) *exitCandidate {
	if position.MaxHoldHours <= 0 {
		return nil
	}

	deadline := position.EntryAt.Add(time.Duration(position.MaxHoldHours * float64(time.Hour)))
	if deadline.Before(windowStart) || deadline.After(now) {
		return nil
	}

	price := priceAt(candles, deadline)
	if price <= 0 {
		price = position.EntryPrice
	}

	return &exitCandidate{at: deadline, price: price, reason: model.ExitReasonTimeExit, priority: exitPriority(model.ExitReasonTimeExit)}
}

// deltaCandidate replays the hourly sell-ratio series and fires at the first
// in-window sample that breaches the position's delta threshold, priced from
// the candle containing the sample.
func (e *Engine) deltaCandidate(ctx context.Context, position *model.Position, candles []connectors.Candle, windowStart, now time.Time) (*exitCandidate, error) {
	if position.DeltaExitThreshold <= 0 {
		return nil, nil
	}

	limit := int(now.Sub(windowStart).Hours()) + 2
	samples, err := e.market.GetSellRatio(ctx, position.Symbol, limit)
	if err != nil {
		return nil, err
	}

	for _, s := range samples {
		if s.Ts.Before(windowStart) || s.Ts.After(now) {
			continue
		}
		if s.SellRatio == nil || math.IsNaN(*s.SellRatio) || math.IsInf(*s.SellRatio, 0) {
			continue
		}
		if *s.SellRatio-position.EntrySellRatio < position.DeltaExitThreshold {
			continue
		}

		price := priceAt(candles, s.Ts)
		if price <= 0 {
			price = position.EntryPrice
		}
		return &exitCandidate{at: s.Ts, price: price, reason: model.ExitReasonDeltaExit, priority: exitPriority(model.ExitReasonDeltaExit)}, nil
	}

	return nil, nil
}

// liquidationPrice is the price at which a short's margin is exhausted:
// entry * (1 + 1/leverage).
func liquidationPrice(position *model.Position) float64 {
	if position.Leverage <= 0 || position.EntryPrice <= 0 {
		return 0
	}
	return position.EntryPrice * (1 + 1/position.Leverage)
}

// takeProfitPrice is the downside target: entry * (1 - takeProfitPct).
func takeProfitPrice(position *model.Position) float64 {
	if position.TakeProfitPct <= 0 || position.EntryPrice <= 0 {
		return 0
	}
	return position.EntryPrice * (1 - position.TakeProfitPct)
}

// priceAt resolves a historical price from hourly candles: the close of the
// candle containing ts, else the close of the nearest earlier candle, else 0.
func priceAt(candles []connectors.Candle, ts time.Time) float64 {
	var best float64
	for _, c := range candles {
		closeAt := c.OpenTime.Add(time.Hour)
		if !c.OpenTime.After(ts) && ts.Before(closeAt) {
			return c.Close
		}
		if closeAt.Before(ts) || closeAt.Equal(ts) {
			best = c.Close
		}
	}
	return best
}

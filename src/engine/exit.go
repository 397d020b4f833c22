package engine

import (
	"context"
	"math"
	"time"

	logger "github.com/sirupsen/logrus"

	"papershort/src/costs"
	"papershort/src/metrics"
	"papershort/src/model"
)

// evaluateOpenPositions runs the exit checks for every open position. When
// downtime reconciliation is enabled and a previous scan exists, positions
// are first replayed over the missed window; survivors then get the live
// check against the current mark.
func (e *Engine) evaluateOpenPositions(ctx context.Context, log *logger.Entry, now time.Time, lastScan *time.Time) {
	open, err := e.repos.Positions.FindOpen(ctx)
	if err != nil {
		log.WithError(err).Error("could not load open positions, skipping exit pass")
		return
	}

	for i := range open {
		position := &open[i]
		plog := log.WithFields(logger.Fields{"symbol": position.Symbol, "position": position.ID})

		if e.cfg.ReconcileEnabled && lastScan != nil && now.After(*lastScan) {
			closed, err := e.reconcilePosition(ctx, plog, position, now, *lastScan)
			if err != nil {
				plog.WithError(err).Error("reconciliation failed, leaving position for next cycle")
				continue
			}
			if closed {
				continue
			}
		}

		if err := e.evaluateLive(ctx, plog, position, now); err != nil {
			plog.WithError(err).Error("live exit evaluation failed")
		}
	}
}

// evaluateLive marks a position against the current ticker and applies the
// exit triggers in precedence order: liquidation, take profit, delta
// reversal, max hold time.
func (e *Engine) evaluateLive(ctx context.Context, log *logger.Entry, position *model.Position, now time.Time) error {
	ticker, err := e.market.GetTicker(ctx, position.Symbol)
	if err != nil {
		return err
	}
	if ticker == nil || ticker.MarkPrice <= 0 {
		log.Warn("no usable mark price, skipping position this cycle")
		return nil
	}

	mark := ticker.MarkPrice
	unleveredPct := costs.ShortUnleveredReturnPct(position.EntryPrice, mark)
	leveredPct := costs.LeveragedReturnPct(unleveredPct, position.Leverage)
	unrealized := costs.PnlUsdFromUnleveredPct(position.MarginUsd, position.Leverage, unleveredPct)
	funding := e.accruedFunding(ctx, log, position, now)

	position.MarkPrice = &mark
	position.MarkAt = &now
	position.MarkUnleveredPct = &unleveredPct
	position.MarkLeveredPct = &leveredPct
	position.UnrealizedPnlUsd = &unrealized
	position.FundingUsd = &funding

	if err := e.repos.Positions.UpdateMark(ctx, position); err != nil {
		return err
	}

	if unleveredPct <= costs.LiquidationThresholdUnleveredPct(position.Leverage) {
		return e.closePosition(ctx, log, position, now, mark, model.ExitReasonLiquidation)
	}

	if position.TakeProfitPct > 0 && unleveredPct >= position.TakeProfitPct*100 {
		return e.closePosition(ctx, log, position, now, mark, model.ExitReasonTakeProfit)
	}

	triggered, err := e.deltaReversed(ctx, position)
	if err != nil {
		// A failed ratio fetch skips the delta check, it does not block the
		// remaining triggers.
		log.WithError(err).Warn("sell ratio fetch failed, skipping delta check")
	} else if triggered {
		return e.closePosition(ctx, log, position, now, mark, model.ExitReasonDeltaExit)
	}

	if position.MaxHoldHours > 0 {
		deadline := position.EntryAt.Add(time.Duration(position.MaxHoldHours * float64(time.Hour)))
		if !now.Before(deadline) {
			return e.closePosition(ctx, log, position, now, mark, model.ExitReasonTimeExit)
		}
	}

	return nil
}

// deltaReversed reports whether taker sell pressure has climbed by at least
// the position's delta threshold above its entry ratio.
func (e *Engine) deltaReversed(ctx context.Context, position *model.Position) (bool, error) {
	if position.DeltaExitThreshold <= 0 {
		return false, nil
	}

	samples, err := e.market.GetSellRatio(ctx, position.Symbol, 2)
	if err != nil {
		return false, err
	}

	var latest *float64
	for i := range samples {
		if samples[i].SellRatio != nil {
			latest = samples[i].SellRatio
		}
	}
	if latest == nil || math.IsNaN(*latest) || math.IsInf(*latest, 0) {
		return false, nil
	}

	return *latest-position.EntrySellRatio >= position.DeltaExitThreshold, nil
}

// accruedFunding sums funding income over the position's lifetime. Shorts
// receive funding when the rate is positive, so income is rate * notional
// per settlement. Disabled or failing lookups yield 0, never an error.
func (e *Engine) accruedFunding(ctx context.Context, log *logger.Entry, position *model.Position, until time.Time) float64 {
	if !e.cfg.FundingEnabled {
		return 0
	}
	if position.NotionalUsd <= 0 || !until.After(position.EntryAt) {
		return 0
	}

	rates, err := e.market.GetFundingHistory(ctx, position.Symbol, position.EntryAt, until)
	if err != nil {
		log.WithError(err).Warn("funding history fetch failed, carrying zero funding")
		return 0
	}

	var total float64
	for _, r := range rates {
		if math.IsNaN(r.Rate) || math.IsInf(r.Rate, 0) {
			continue
		}
		total += r.Rate * position.NotionalUsd
	}

	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0
	}
	return total
}

// closePosition settles a position at the given exit price: realized
// returns, round-trip costs, funding, then the terminal position update and
// the immutable trade row.
func (e *Engine) closePosition(ctx context.Context, log *logger.Entry, position *model.Position, exitAt time.Time, exitPrice float64, reason string) error {
	unleveredPct := costs.ShortUnleveredReturnPct(position.EntryPrice, exitPrice)
	leveredPct := costs.LeveragedReturnPct(unleveredPct, position.Leverage)
	gross := costs.PnlUsdFromUnleveredPct(position.MarginUsd, position.Leverage, unleveredPct)

	// A liquidation cannot lose more than the posted margin.
	if reason == model.ExitReasonLiquidation && gross < -position.MarginUsd {
		gross = -position.MarginUsd
	}

	breakdown := costs.ApplyCosts(position.NotionalUsd, costs.Config{
		FeesEnabled:     e.cfg.FeesEnabled,
		TakerFeeBps:     e.cfg.TakerFeeBps,
		SlippageEnabled: e.cfg.SlippageEnabled,
		EntrySlipBps:    e.cfg.EntrySlippageBps,
		ExitSlipBps:     e.cfg.ExitSlippageBps,
	}, nil)

	funding := e.accruedFunding(ctx, log, position, exitAt)
	net := gross - breakdown.TotalUsd + funding

	position.ExitAt = &exitAt
	position.ExitPrice = &exitPrice
	position.ExitReason = &reason
	position.RealizedUnleveredPct = &unleveredPct
	position.RealizedLeveredPct = &leveredPct
	position.GrossPnlUsd = &gross
	position.FeesUsd = &breakdown.FeesUsd
	position.SlippageUsd = &breakdown.SlippageUsd
	position.FundingUsd = &funding
	position.NetPnlUsd = &net

	if err := e.repos.Positions.Close(ctx, position); err != nil {
		return err
	}

	trade := &model.Trade{
		PositionID: position.ID,
		Symbol:     position.Symbol,

		EntryAt:    position.EntryAt,
		EntryPrice: position.EntryPrice,
		ExitAt:     exitAt,
		ExitPrice:  exitPrice,
		ExitReason: reason,

		Leverage:    position.Leverage,
		MarginUsd:   position.MarginUsd,
		NotionalUsd: position.NotionalUsd,
		Quantity:    position.Quantity,

		UnleveredPct: unleveredPct,
		LeveredPct:   leveredPct,
		GrossPnlUsd:  gross,
		FeesUsd:      breakdown.FeesUsd,
		SlippageUsd:  breakdown.SlippageUsd,
		FundingUsd:   funding,
		NetPnlUsd:    net,
	}
	if err := e.repos.Trades.Insert(ctx, trade); err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"reason":    reason,
		"exitPrice": exitPrice,
		"netPnlUsd": net,
	}).Info("position closed")

	metrics.IncExit(reason)
	e.notify.NotifyExit(ctx, position, trade)

	return nil
}

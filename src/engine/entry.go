package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	logger "github.com/sirupsen/logrus"

	"papershort/src/costs"
	"papershort/src/detector"
	"papershort/src/model"
	"papershort/src/notifier"
)

// handleSignal persists the detection and walks the entry gates in order:
// idempotency, duplicate symbol, price sanity, cash floor, capacity (with
// replacement arbitration). The returned outcome is whatever was written to
// the signal row, or SKIPPED_ALREADY_PROCESSED when the hour was already
// settled in a previous cycle.
func (e *Engine) handleSignal(ctx context.Context, log *logger.Entry, det *detector.Detection, now time.Time) (string, error) {
	existing, err := e.repos.Signals.FindBySymbolHour(ctx, det.Symbol, det.HourStart)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if existing.Outcome != model.SignalOutcomePending {
			return model.SignalOutcomeSkippedProcessed, nil
		}
		// A PENDING leftover means a previous cycle died between create and
		// outcome; resume from the stored row.
		return e.decideEntry(ctx, log, existing, now)
	}

	signal := &model.Signal{
		Symbol:        det.Symbol,
		HourStart:     det.HourStart,
		HourEnd:       det.HourEnd,
		SellRatio:     det.SellRatio,
		HourVolume:    det.HourVolume,
		ClosePrice:    det.ClosePrice,
		NextOpenPrice: det.NextOpenPrice,
		Outcome:       model.SignalOutcomePending,
	}
	if err := e.repos.Signals.Create(ctx, signal); err != nil {
		return "", err
	}

	return e.decideEntry(ctx, log, signal, now)
}

func (e *Engine) decideEntry(ctx context.Context, log *logger.Entry, signal *model.Signal, now time.Time) (string, error) {
	settle := func(outcome, reason string) (string, error) {
		if err := e.repos.Signals.SetOutcome(ctx, signal.ID, outcome, reason, now); err != nil {
			return "", err
		}
		log.WithFields(logger.Fields{
			"symbol":  signal.Symbol,
			"outcome": outcome,
			"reason":  reason,
		}).Info("signal settled")
		return outcome, nil
	}

	if e.cfg.PreventDuplicateSymbols {
		open, err := e.repos.Positions.FindOpenBySymbol(ctx, signal.Symbol)
		if err != nil {
			return "", err
		}
		if open != nil {
			return settle(model.SignalOutcomeMissedDuplicate, fmt.Sprintf("open position #%d already holds %s", open.ID, signal.Symbol))
		}
	}

	entryPrice := signal.NextOpenPrice
	if entryPrice <= 0 || math.IsNaN(entryPrice) || math.IsInf(entryPrice, 0) {
		return settle(model.SignalOutcomeMissedBadPrice, fmt.Sprintf("unusable entry price %v", entryPrice))
	}

	summary, err := e.repos.Summary.Compute(ctx, e.cfg.InitialEquityUsd)
	if err != nil {
		return "", err
	}

	margin := summary.EquityUsd * e.cfg.EntryMarginFraction
	if e.cfg.EntryMarginCapUsd > 0 && margin > e.cfg.EntryMarginCapUsd {
		margin = e.cfg.EntryMarginCapUsd
	}
	if margin > summary.CashUsd {
		margin = summary.CashUsd
	}

	if math.IsNaN(margin) || math.IsInf(margin, 0) || margin < e.cfg.MinActiveCashUsd {
		return settle(model.SignalOutcomeMissedNoCash,
			fmt.Sprintf("margin %.2f below active floor %.2f (cash %.2f)", margin, e.cfg.MinActiveCashUsd, summary.CashUsd))
	}

	outcome := model.SignalOutcomeOpened
	var replacement *notifier.Replacement

	openCount, err := e.repos.Positions.CountOpen(ctx)
	if err != nil {
		return "", err
	}
	if e.cfg.MaxOpenPositions > 0 && openCount >= int64(e.cfg.MaxOpenPositions) {
		victim, metric, err := e.findReplaceable(ctx)
		if err != nil {
			return "", err
		}
		if victim == nil {
			return settle(model.SignalOutcomeMissedCapacity,
				fmt.Sprintf("%d open positions at cap, none below replacement threshold", openCount))
		}

		if err := e.closeForReplacement(ctx, log, victim, now); err != nil {
			return "", err
		}

		outcome = model.SignalOutcomeOpenedReplace
		replacement = &notifier.Replacement{Symbol: victim.Symbol, LatestReturnPct: metric}
	}

	notional := margin * e.cfg.Leverage
	position := &model.Position{
		Symbol:           signal.Symbol,
		SignalID:         &signal.ID,
		Status:           model.PositionStatusOpen,
		EntryAt:          now,
		EntryPrice:       entryPrice,
		EntrySellRatio:   signal.SellRatio,
		SignalHourVolume: signal.HourVolume,

		Leverage:    e.cfg.Leverage,
		MarginUsd:   margin,
		NotionalUsd: notional,
		Quantity:    costs.QtyFromNotional(notional, entryPrice),

		TakeProfitPct:       e.cfg.TakeProfitPct,
		DeltaExitThreshold:  e.cfg.DeltaExitThreshold,
		ReplaceThresholdPct: e.cfg.ReplaceThresholdPct,
		MaxHoldHours:        e.cfg.MaxHoldHours,
	}

	if err := e.repos.Positions.Open(ctx, position); err != nil {
		return "", err
	}

	reason := fmt.Sprintf("short %s @ %.8g, margin %.2f x%g", signal.Symbol, entryPrice, margin, e.cfg.Leverage)
	if replacement != nil {
		reason = fmt.Sprintf("%s, replaced %s at %.2f%%", reason, replacement.Symbol, replacement.LatestReturnPct)
	}
	out, err := settle(outcome, reason)
	if err != nil {
		return "", err
	}

	e.notify.NotifyEntry(ctx, position, replacement)

	return out, nil
}

// closeForReplacement settles the evicted position at its latest known mark,
// falling back to the entry price when it was never marked.
func (e *Engine) closeForReplacement(ctx context.Context, log *logger.Entry, victim *model.Position, now time.Time) error {
	exitPrice := victim.EntryPrice
	if victim.MarkPrice != nil && *victim.MarkPrice > 0 {
		exitPrice = *victim.MarkPrice
	}

	log.WithFields(logger.Fields{
		"symbol":    victim.Symbol,
		"id":        victim.ID,
		"exitPrice": exitPrice,
	}).Info("evicting position for replacement")

	return e.closePosition(ctx, log, victim, now, exitPrice, model.ExitReasonReplace)
}

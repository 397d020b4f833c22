package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"papershort/src/connectors"
	"papershort/src/detector"
	"papershort/src/metrics"
	"papershort/src/model"
	"papershort/src/notifier"
	"papershort/src/repository"
)

const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

// CycleResult reports whether a scan cycle ran and, when it did not, why.
type CycleResult struct {
	Executed bool   `json:"executed"`
	Reason   string `json:"reason,omitempty"`
}

// Repositories bundles the storage collaborators the engine writes through.
type Repositories struct {
	Signals   *repository.SignalRepository
	Positions *repository.PositionRepository
	Trades    *repository.TradeRepository
	State     *repository.RuntimeStateRepository
	Summary   *repository.SummaryRepository
}

// Engine owns the scan cycle: symbol universe refresh, exit evaluation over
// open positions (with downtime reconciliation), signal detection and entry
// handling. All position/signal/trade mutation flows through here. The
// engine holds no entity state across cycles: every cycle re-reads open
// positions and the account summary from storage.
type Engine struct {
	cfg      Config
	market   connectors.MarketData
	detector *detector.Detector
	notify   notifier.Notifier
	repos    Repositories
	now      func() time.Time

	// Non-blocking guard: overlapping triggers are rejected, never queued.
	cycleMu sync.Mutex

	// The cached universe is refreshed on an interval, not per cycle; it is
	// the only state deliberately kept in memory.
	universe []string
}

func New(cfg Config, market connectors.MarketData, notify notifier.Notifier, repos Repositories) *Engine {
	det := detector.NewDetector(market, detector.Params{
		MinHourVolume: cfg.MinHourVolume,
		MaxSellRatio:  cfg.MaxSellRatio,
	})

	return &Engine{
		cfg:      cfg,
		market:   market,
		detector: det,
		notify:   notify,
		repos:    repos,
		now:      time.Now,
	}
}

// RunCycle executes one scan cycle. A cycle already in progress causes an
// immediate rejection; a manual trigger that is rejected also notifies so
// the operator sees why nothing happened.
func (e *Engine) RunCycle(ctx context.Context, trigger string) CycleResult {
	if !e.cycleMu.TryLock() {
		logger.WithField("trigger", trigger).Warn("scan cycle already in progress, rejecting trigger")
		metrics.IncCycle(trigger, "skipped")

		if trigger == TriggerManual {
			e.notify.NotifyScanSkipped(ctx, trigger, "cycle already in progress")
		}

		return CycleResult{Executed: false, Reason: "cycle already in progress"}
	}
	defer e.cycleMu.Unlock()

	cycleID := uuid.NewString()
	log := logger.WithFields(logger.Fields{"cycle": cycleID, "trigger": trigger})

	now := e.now().UTC()
	log.Info("scan cycle started")

	lastScan, err := e.repos.State.GetTime(ctx, model.StateKeyLastScanAt)
	if err != nil {
		log.WithError(err).Error("runtime state unavailable, aborting cycle")
		metrics.IncCycle(trigger, "failed")
		return CycleResult{Executed: false, Reason: "runtime state unavailable"}
	}

	e.refreshUniverse(ctx, log, now)

	e.evaluateOpenPositions(ctx, log, now, lastScan)

	e.scanForSignals(ctx, log, now)

	// The high-water mark is only advanced after a full pass; if this write
	// fails the next cycle re-reconciles the same window.
	if err := e.repos.State.SetTime(ctx, model.StateKeyLastScanAt, now); err != nil {
		log.WithError(err).Error("failed to commit scan high-water mark")
		metrics.IncCycle(trigger, "failed")
		return CycleResult{Executed: false, Reason: "failed to commit scan high-water mark"}
	}

	e.publishSummaryMetrics(ctx)

	log.Info("scan cycle finished")
	metrics.IncCycle(trigger, "executed")
	return CycleResult{Executed: true}
}

// refreshUniverse re-fetches the tradable symbol set when it is stale.
// Failures keep the previous universe: a missing refresh is not worth
// aborting the cycle for.
func (e *Engine) refreshUniverse(ctx context.Context, log *logger.Entry, now time.Time) {
	lastRefresh, err := e.repos.State.GetTime(ctx, model.StateKeyLastUniverseAt)
	if err != nil {
		log.WithError(err).Warn("could not read universe refresh marker")
	}

	fresh := lastRefresh != nil && now.Sub(*lastRefresh) < e.cfg.UniverseRefreshInterval
	if fresh && len(e.universe) > 0 {
		return
	}

	symbols, err := e.market.GetSymbols(ctx)
	if err != nil {
		log.WithError(err).Error("symbol universe refresh failed, keeping previous set")
		return
	}

	universe := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s.Status != "TRADING" || s.ContractType != "PERPETUAL" {
			continue
		}
		universe = append(universe, s.Symbol)
		if e.cfg.UniverseMaxSymbols > 0 && len(universe) >= e.cfg.UniverseMaxSymbols {
			break
		}
	}

	e.universe = universe
	log.WithField("symbols", len(universe)).Info("symbol universe refreshed")

	if err := e.repos.State.SetTime(ctx, model.StateKeyLastUniverseAt, now); err != nil {
		log.WithError(err).Warn("could not persist universe refresh marker")
	}
}

// scanForSignals runs detection over the universe in bounded concurrent
// batches, then handles the confirmed detections sequentially so entry
// ordering (and therefore replacement arbitration) stays deterministic.
func (e *Engine) scanForSignals(ctx context.Context, log *logger.Entry, now time.Time) {
	batchSize := e.cfg.DetectBatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	for start := 0; start < len(e.universe); start += batchSize {
		end := start + batchSize
		if end > len(e.universe) {
			end = len(e.universe)
		}
		batch := e.universe[start:end]

		detections := make([]*detector.Detection, len(batch))
		var wg sync.WaitGroup
		for i, symbol := range batch {
			wg.Add(1)
			go func(i int, symbol string) {
				defer wg.Done()

				det, err := e.detector.Detect(ctx, symbol)
				if err != nil {
					log.WithError(err).WithField("symbol", symbol).Warn("signal detection failed for symbol")
					return
				}
				detections[i] = det
			}(i, symbol)
		}
		wg.Wait()

		for _, det := range detections {
			if det == nil {
				continue
			}
			outcome, err := e.handleSignal(ctx, log, det, now)
			if err != nil {
				log.WithError(err).WithField("symbol", det.Symbol).Error("signal handling failed")
				continue
			}
			metrics.IncSignalOutcome(outcome)
		}

		if end < len(e.universe) && e.cfg.DetectBatchPause > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cfg.DetectBatchPause):
			}
		}
	}
}

func (e *Engine) publishSummaryMetrics(ctx context.Context) {
	summary, err := e.repos.Summary.Compute(ctx, e.cfg.InitialEquityUsd)
	if err != nil {
		return
	}
	metrics.SetOpenPositions(float64(summary.OpenPositions))
	metrics.SetEquity(summary.EquityUsd)
	metrics.SetRealizedPnl(summary.RealizedPnl)
}

// Package metrics exposes the Prometheus series the engine updates during
// operation, served at /metrics in text exposition format:
//   - papershort_cycles_total{trigger,result}   – scan cycles (executed|skipped|failed)
//   - papershort_signals_total{outcome}         – signal evaluations by terminal outcome
//   - papershort_exits_total{reason}            – position exits by reason
//   - papershort_open_positions                 – open position count (gauge)
//   - papershort_equity_usd                     – equity snapshot (gauge)
//   - papershort_realized_pnl_usd               – realized PnL snapshot (gauge)
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papershort_cycles_total",
			Help: "Scan cycles by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papershort_signals_total",
			Help: "Signal evaluations by terminal outcome",
		},
		[]string{"outcome"},
	)

	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papershort_exits_total",
			Help: "Position exits by reason",
		},
		[]string{"reason"},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "papershort_open_positions",
			Help: "Open position count",
		},
	)

	equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "papershort_equity_usd",
			Help: "Equity in USD",
		},
	)

	realizedPnl = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "papershort_realized_pnl_usd",
			Help: "Realized PnL in USD",
		},
	)
)

func init() {
	prometheus.MustRegister(cycles, signals, exits)
	prometheus.MustRegister(openPositions, equity, realizedPnl)
}

func IncCycle(trigger, result string) { cycles.WithLabelValues(trigger, result).Inc() }
func IncSignalOutcome(outcome string) { signals.WithLabelValues(outcome).Inc() }
func IncExit(reason string)           { exits.WithLabelValues(reason).Inc() }
func SetOpenPositions(n float64)      { openPositions.Set(n) }
func SetEquity(v float64)             { equity.Set(v) }
func SetRealizedPnl(v float64)        { realizedPnl.Set(v) }

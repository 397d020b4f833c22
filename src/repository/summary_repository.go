package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"papershort/src/database"
	"papershort/src/model"
)

// Summary is the live cross-table account snapshot. It is computed fresh
// from stored rows on every call, never cached, so sizing decisions always
// see the state the database sees.
type Summary struct {
	Entries        int64   `json:"entries"`
	Winners        int64   `json:"winners"`
	Losers         int64   `json:"losers"`
	Liquidated     int64   `json:"liquidated"`
	Replaced       int64   `json:"replaced"`
	OpenPositions  int64   `json:"open_positions"`
	CashUsd        float64 `json:"cash_usd"`
	MarginInUseUsd float64 `json:"margin_in_use_usd"`
	OpenNotional   float64 `json:"open_notional_usd"`
	UnrealizedPnl  float64 `json:"unrealized_pnl_usd"`
	RealizedPnl    float64 `json:"realized_pnl_usd"`
	EquityUsd      float64 `json:"equity_usd"`
	TotalPnlPct    float64 `json:"total_pnl_pct"`
	WinPct         float64 `json:"win_pct"`
}

type SummaryRepository struct {
	db *gorm.DB
}

func NewSummaryRepository() *SummaryRepository {
	return &SummaryRepository{db: database.MainDB}
}

func NewSummaryRepositoryWithDB(db *gorm.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SummaryRepository) WithDB(db *gorm.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

type openAggregates struct {
	Count      int64
	Margin     float64
	Notional   float64
	Unrealized float64
}

type tradeAggregates struct {
	Winners    int64
	Losers     int64
	Liquidated int64
	Replaced   int64
	Realized   float64
}

// Compute aggregates positions and trades against the configured starting
// equity. Cash excludes margin locked in open positions; equity includes
// unrealized PnL.
func (r *SummaryRepository) Compute(ctx context.Context, initialEquityUsd float64) (*Summary, error) {
	var open openAggregates
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Select(`COUNT(*) AS count,
			COALESCE(SUM(margin_usd), 0) AS margin,
			COALESCE(SUM(notional_usd), 0) AS notional,
			COALESCE(SUM(unrealized_pnl_usd), 0) AS unrealized`).
		Where("status = ?", model.PositionStatusOpen).
		Scan(&open).Error
	if err != nil {
		logger.WithField("repo", "SummaryRepository").WithError(err).Error("Failed to aggregate open positions")
		return nil, err
	}

	var entries int64
	err = r.db.WithContext(ctx).
		Model(&model.Position{}).
		Count(&entries).Error
	if err != nil {
		logger.WithField("repo", "SummaryRepository").WithError(err).Error("Failed to count entries")
		return nil, err
	}

	var trades tradeAggregates
	err = r.db.WithContext(ctx).
		Model(&model.Trade{}).
		Select(`COALESCE(SUM(CASE WHEN net_pnl_usd > 0 THEN 1 ELSE 0 END), 0) AS winners,
			COALESCE(SUM(CASE WHEN net_pnl_usd < 0 THEN 1 ELSE 0 END), 0) AS losers,
			COALESCE(SUM(CASE WHEN exit_reason = 'LIQUIDATION' THEN 1 ELSE 0 END), 0) AS liquidated,
			COALESCE(SUM(CASE WHEN exit_reason = 'REPLACE' THEN 1 ELSE 0 END), 0) AS replaced,
			COALESCE(SUM(net_pnl_usd), 0) AS realized`).
		Scan(&trades).Error
	if err != nil {
		logger.WithField("repo", "SummaryRepository").WithError(err).Error("Failed to aggregate trades")
		return nil, err
	}

	summary := &Summary{
		Entries:        entries,
		Winners:        trades.Winners,
		Losers:         trades.Losers,
		Liquidated:     trades.Liquidated,
		Replaced:       trades.Replaced,
		OpenPositions:  open.Count,
		MarginInUseUsd: open.Margin,
		OpenNotional:   open.Notional,
		UnrealizedPnl:  open.Unrealized,
		RealizedPnl:    trades.Realized,
		CashUsd:        initialEquityUsd + trades.Realized - open.Margin,
		EquityUsd:      initialEquityUsd + trades.Realized + open.Unrealized,
	}

	if initialEquityUsd > 0 {
		summary.TotalPnlPct = (summary.EquityUsd - initialEquityUsd) / initialEquityUsd * 100
	}
	if settled := trades.Winners + trades.Losers; settled > 0 {
		summary.WinPct = float64(trades.Winners) / float64(settled) * 100
	}

	return summary, nil
}

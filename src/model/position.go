package model

import "time"

const (
	PositionStatusOpen   = "OPEN"
	PositionStatusClosed = "CLOSED"
)

const (
	ExitReasonLiquidation = "LIQUIDATION"
	ExitReasonTakeProfit  = "TAKE_PROFIT"
	ExitReasonDeltaExit   = "DELTA_EXIT"
	ExitReasonTimeExit    = "TIME_EXIT"
	ExitReasonReplace     = "REPLACE"
)

// Position is a simulated short. Risk parameters are copied from the live
// config at open time so later config edits never change the rules an open
// position is judged by. Mark fields stay nil until the first mark-to-market
// pass; close fields stay nil until the position is closed. Closing is a
// terminal status transition, rows are never deleted.
type Position struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Symbol   string `gorm:"size:30;not null;index:idx_positions_symbol_status" json:"symbol"`
	SignalID *uint  `gorm:"index" json:"signal_id,omitempty"`
	Status   string `gorm:"size:10;not null;default:OPEN;index:idx_positions_symbol_status" json:"status"`

	EntryAt          time.Time `gorm:"not null" json:"entry_at"`
	EntryPrice       float64   `json:"entry_price"`
	EntrySellRatio   float64   `json:"entry_sell_ratio"`
	SignalHourVolume float64   `json:"signal_hour_volume"`

	Leverage    float64 `json:"leverage"`
	MarginUsd   float64 `json:"margin_usd"`
	NotionalUsd float64 `json:"notional_usd"`
	Quantity    float64 `json:"quantity"`

	TakeProfitPct       float64 `json:"take_profit_pct"`
	DeltaExitThreshold  float64 `json:"delta_exit_threshold"`
	ReplaceThresholdPct float64 `json:"replace_threshold_pct"`
	MaxHoldHours        float64 `json:"max_hold_hours"`

	MarkPrice        *float64   `json:"mark_price,omitempty"`
	MarkAt           *time.Time `json:"mark_at,omitempty"`
	MarkUnleveredPct *float64   `json:"mark_unlevered_pct,omitempty"`
	MarkLeveredPct   *float64   `json:"mark_levered_pct,omitempty"`
	UnrealizedPnlUsd *float64   `json:"unrealized_pnl_usd,omitempty"`
	FundingUsd       *float64   `json:"funding_usd,omitempty"`

	ExitAt               *time.Time `json:"exit_at,omitempty"`
	ExitPrice            *float64   `json:"exit_price,omitempty"`
	ExitReason           *string    `gorm:"size:20" json:"exit_reason,omitempty"`
	RealizedUnleveredPct *float64   `json:"realized_unlevered_pct,omitempty"`
	RealizedLeveredPct   *float64   `json:"realized_levered_pct,omitempty"`
	GrossPnlUsd          *float64   `json:"gross_pnl_usd,omitempty"`
	FeesUsd              *float64   `json:"fees_usd,omitempty"`
	SlippageUsd          *float64   `json:"slippage_usd,omitempty"`
	NetPnlUsd            *float64   `json:"net_pnl_usd,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

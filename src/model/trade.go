package model

import "time"

// Trade is the immutable settlement record written exactly once when a
// position closes. Realized fields are denormalized so reporting does not
// depend on the position row.
type Trade struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	PositionID uint   `gorm:"index" json:"position_id"`
	Symbol     string `gorm:"size:30;not null;index" json:"symbol"`

	EntryAt    time.Time `json:"entry_at"`
	EntryPrice float64   `json:"entry_price"`
	ExitAt     time.Time `json:"exit_at"`
	ExitPrice  float64   `json:"exit_price"`
	ExitReason string    `gorm:"size:20;not null;index" json:"exit_reason"`

	Leverage    float64 `json:"leverage"`
	MarginUsd   float64 `json:"margin_usd"`
	NotionalUsd float64 `json:"notional_usd"`
	Quantity    float64 `json:"quantity"`

	UnleveredPct float64 `json:"unlevered_pct"`
	LeveredPct   float64 `json:"levered_pct"`
	GrossPnlUsd  float64 `json:"gross_pnl_usd"`
	FeesUsd      float64 `json:"fees_usd"`
	SlippageUsd  float64 `json:"slippage_usd"`
	FundingUsd   float64 `json:"funding_usd"`
	NetPnlUsd    float64 `json:"net_pnl_usd"`

	CreatedAt time.Time `json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}

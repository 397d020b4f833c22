package model

import "time"

const (
	SignalOutcomePending          = "PENDING"
	SignalOutcomeOpened           = "OPENED"
	SignalOutcomeOpenedReplace    = "OPENED_REPLACEMENT"
	SignalOutcomeMissedDuplicate  = "MISSED_DUPLICATE"
	SignalOutcomeMissedCapacity   = "MISSED_CAPACITY"
	SignalOutcomeMissedNoCash     = "MISSED_NO_CASH"
	SignalOutcomeMissedBadPrice   = "MISSED_INVALID_PRICE"
	SignalOutcomeSkippedProcessed = "SKIPPED_ALREADY_PROCESSED"
)

// Signal is one entry-rule evaluation for a symbol at a specific closed
// hourly window. At most one row may exist per (symbol, hour_start); the
// outcome is set exactly once and the row is never deleted.
type Signal struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Symbol        string     `gorm:"size:30;not null;uniqueIndex:idx_signals_symbol_hour" json:"symbol"`
	HourStart     time.Time  `gorm:"not null;uniqueIndex:idx_signals_symbol_hour" json:"hour_start"`
	HourEnd       time.Time  `gorm:"not null" json:"hour_end"`
	SellRatio     float64    `json:"sell_ratio"`
	HourVolume    float64    `json:"hour_volume"`
	ClosePrice    float64    `json:"close_price"`
	NextOpenPrice float64    `json:"next_open_price"`
	Outcome       string     `gorm:"size:40;not null;default:PENDING;index" json:"outcome"`
	OutcomeReason string     `gorm:"type:text" json:"outcome_reason,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Signal) TableName() string {
	return "signals"
}

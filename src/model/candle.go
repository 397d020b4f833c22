package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle1h is an archived hourly candle written by the archive command.
// Upserts key on (symbol, open_time).
type Candle1h struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	Symbol   string          `gorm:"size:30;not null;uniqueIndex:idx_candles_symbol_open" json:"symbol"`
	OpenTime time.Time       `gorm:"not null;uniqueIndex:idx_candles_symbol_open" json:"open_time"`
	Open     decimal.Decimal `gorm:"type:decimal(24,8)" json:"open"`
	High     decimal.Decimal `gorm:"type:decimal(24,8)" json:"high"`
	Low      decimal.Decimal `gorm:"type:decimal(24,8)" json:"low"`
	Close    decimal.Decimal `gorm:"type:decimal(24,8)" json:"close"`
	Volume   decimal.Decimal `gorm:"type:decimal(30,8)" json:"volume"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Candle1h) TableName() string {
	return "candles_1h"
}

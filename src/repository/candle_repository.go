package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"papershort/src/database"
	"papershort/src/model"
)

// CandleRepository owns the archived hourly candles written by the archive
// command.
type CandleRepository struct {
	db *gorm.DB
}

func NewCandleRepository() *CandleRepository {
	return &CandleRepository{db: database.MainDB}
}

func NewCandleRepositoryWithDB(db *gorm.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *CandleRepository) WithDB(db *gorm.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

// Upsert writes a candle keyed on (symbol, open_time), replacing OHLCV on
// conflict so re-archiving a window is idempotent.
func (r *CandleRepository) Upsert(ctx context.Context, candle *model.Candle1h) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "open_time"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
		}).
		Create(candle).Error

	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":     "CandleRepository",
			"op":       "Upsert",
			"symbol":   candle.Symbol,
			"openTime": candle.OpenTime,
		}).WithError(err).Error("Failed to upsert candle")
		return err
	}

	return nil
}

// CountForSymbol reports how many hours of history the archive holds.
func (r *CandleRepository) CountForSymbol(ctx context.Context, symbol string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Candle1h{}).
		Where("symbol = ?", symbol).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

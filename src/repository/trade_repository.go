package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"papershort/src/database"
	"papershort/src/model"
)

// TradeRepository owns the immutable trades ledger.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.MainDB}
}

func NewTradeRepositoryWithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

func (r *TradeRepository) Insert(ctx context.Context, trade *model.Trade) error {
	if err := r.db.WithContext(ctx).Create(trade).Error; err != nil {
		logger.WithFields(logger.Fields{
			"repo":       "TradeRepository",
			"op":         "Insert",
			"symbol":     trade.Symbol,
			"positionID": trade.PositionID,
		}).WithError(err).Error("Failed to insert trade")
		return err
	}

	logger.WithFields(logger.Fields{
		"repo":   "TradeRepository",
		"symbol": trade.Symbol,
		"reason": trade.ExitReason,
		"netPnl": trade.NetPnlUsd,
	}).Info("Trade settled")

	return nil
}

func (r *TradeRepository) FindLatest(ctx context.Context, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 50
	}

	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo": "TradeRepository",
			"op":   "FindLatest",
		}).WithError(err).Error("Failed to fetch latest trades")
		return nil, err
	}

	return trades, nil
}

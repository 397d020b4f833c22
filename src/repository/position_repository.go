package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"papershort/src/database"
	"papershort/src/model"
)

type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

func NewPositionRepositoryWithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) Open(ctx context.Context, position *model.Position) error {
	if err := r.db.WithContext(ctx).Create(position).Error; err != nil {
		logger.WithFields(logger.Fields{
			"repo":   "PositionRepository",
			"op":     "Open",
			"symbol": position.Symbol,
		}).WithError(err).Error("Failed to open position")
		return err
	}

	logger.WithFields(logger.Fields{
		"repo":     "PositionRepository",
		"id":       position.ID,
		"symbol":   position.Symbol,
		"margin":   position.MarginUsd,
		"notional": position.NotionalUsd,
	}).Info("Position opened")

	return nil
}

// FindOpen returns all open positions ordered by id ascending. Replacement
// arbitration relies on this ordering for its stable tie-break.
func (r *PositionRepository) FindOpen(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("status = ?", model.PositionStatusOpen).
		Order("id ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo": "PositionRepository",
			"op":   "FindOpen",
		}).WithError(err).Error("Failed to fetch open positions")
		return nil, err
	}

	return positions, nil
}

// FindOpenBySymbol returns the open position for a symbol, or (nil, nil).
func (r *PositionRepository) FindOpenBySymbol(ctx context.Context, symbol string) (*model.Position, error) {
	var position model.Position
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND status = ?", symbol, model.PositionStatusOpen).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(logger.Fields{
			"repo":   "PositionRepository",
			"op":     "FindOpenBySymbol",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch open position by symbol")
		return nil, err
	}

	return &position, nil
}

func (r *PositionRepository) CountOpen(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("status = ?", model.PositionStatusOpen).
		Count(&count).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo": "PositionRepository",
			"op":   "CountOpen",
		}).WithError(err).Error("Failed to count open positions")
		return 0, err
	}

	return count, nil
}

// UpdateMark persists the live mark-to-market state of an open position.
func (r *PositionRepository) UpdateMark(ctx context.Context, position *model.Position) error {
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ?", position.ID).
		Updates(map[string]interface{}{
			"mark_price":         position.MarkPrice,
			"mark_at":            position.MarkAt,
			"mark_unlevered_pct": position.MarkUnleveredPct,
			"mark_levered_pct":   position.MarkLeveredPct,
			"unrealized_pnl_usd": position.UnrealizedPnlUsd,
			"funding_usd":        position.FundingUsd,
		}).Error

	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":   "PositionRepository",
			"op":     "UpdateMark",
			"id":     position.ID,
			"symbol": position.Symbol,
		}).WithError(err).Error("Failed to update position mark")
		return err
	}

	return nil
}

// Close writes the terminal state of a position. The status transition to
// CLOSED is final, the row is never deleted.
func (r *PositionRepository) Close(ctx context.Context, position *model.Position) error {
	position.Status = model.PositionStatusClosed

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ?", position.ID).
		Updates(map[string]interface{}{
			"status":                 model.PositionStatusClosed,
			"exit_at":                position.ExitAt,
			"exit_price":             position.ExitPrice,
			"exit_reason":            position.ExitReason,
			"realized_unlevered_pct": position.RealizedUnleveredPct,
			"realized_levered_pct":   position.RealizedLeveredPct,
			"gross_pnl_usd":          position.GrossPnlUsd,
			"fees_usd":               position.FeesUsd,
			"slippage_usd":           position.SlippageUsd,
			"net_pnl_usd":            position.NetPnlUsd,
			"funding_usd":            position.FundingUsd,
		}).Error

	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":   "PositionRepository",
			"op":     "Close",
			"id":     position.ID,
			"symbol": position.Symbol,
		}).WithError(err).Error("Failed to close position")
		return err
	}

	return nil
}

// CountAll reports total entries ever opened, for the summary.
func (r *PositionRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

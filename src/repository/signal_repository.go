package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"papershort/src/database"
	"papershort/src/model"
)

// SignalRepository owns the signals table. The (symbol, hour_start) unique
// index is the idempotency guard for re-detection.
type SignalRepository struct {
	db *gorm.DB
}

func NewSignalRepository() *SignalRepository {
	return &SignalRepository{db: database.MainDB}
}

func NewSignalRepositoryWithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or custom sessions/transactions.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// FindBySymbolHour returns the signal recorded for (symbol, hourStart), or
// (nil, nil) when none exists.
func (r *SignalRepository) FindBySymbolHour(ctx context.Context, symbol string, hourStart time.Time) (*model.Signal, error) {
	var signal model.Signal

	err := r.db.WithContext(ctx).
		Where("symbol = ? AND hour_start = ?", symbol, hourStart).
		First(&signal).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(logger.Fields{
			"repo":      "SignalRepository",
			"op":        "FindBySymbolHour",
			"symbol":    symbol,
			"hourStart": hourStart,
		}).WithError(err).Error("Failed to fetch signal")

		return nil, err
	}

	return &signal, nil
}

func (r *SignalRepository) Create(ctx context.Context, signal *model.Signal) error {
	if err := r.db.WithContext(ctx).Create(signal).Error; err != nil {
		logger.WithFields(logger.Fields{
			"repo":   "SignalRepository",
			"op":     "Create",
			"symbol": signal.Symbol,
		}).WithError(err).Error("Failed to create signal")
		return err
	}
	return nil
}

// SetOutcome records the terminal outcome of a signal exactly once.
func (r *SignalRepository) SetOutcome(ctx context.Context, id uint, outcome, reason string, processedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.Signal{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"outcome":        outcome,
			"outcome_reason": reason,
			"processed_at":   processedAt,
		}).Error

	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":    "SignalRepository",
			"op":      "SetOutcome",
			"id":      id,
			"outcome": outcome,
		}).WithError(err).Error("Failed to set signal outcome")
		return err
	}

	return nil
}

// FindLatest fetches the newest signals for the admin surface.
func (r *SignalRepository) FindLatest(ctx context.Context, limit int) ([]model.Signal, error) {
	if limit <= 0 {
		limit = 50
	}

	var signals []model.Signal
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&signals).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo": "SignalRepository",
			"op":   "FindLatest",
		}).WithError(err).Error("Failed to fetch latest signals")
		return nil, err
	}

	return signals, nil
}

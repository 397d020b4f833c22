package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"papershort/src/database"
	"papershort/src/model"
)

// AlertRepository is the audit log of outbound notifications, replayed by
// the /alerts endpoint.
type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository() *AlertRepository {
	return &AlertRepository{db: database.MainDB}
}

func NewAlertRepositoryWithDB(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *AlertRepository) WithDB(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Insert(ctx context.Context, alert *model.Alert) error {
	if err := r.db.WithContext(ctx).Create(alert).Error; err != nil {
		logger.WithFields(logger.Fields{
			"repo": "AlertRepository",
			"op":   "Insert",
			"kind": alert.Kind,
		}).WithError(err).Error("Failed to insert alert")
		return err
	}
	return nil
}

func (r *AlertRepository) FindLatest(ctx context.Context, limit int) ([]model.Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	var alerts []model.Alert
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo": "AlertRepository",
			"op":   "FindLatest",
		}).WithError(err).Error("Failed to fetch latest alerts")
		return nil, err
	}

	return alerts, nil
}

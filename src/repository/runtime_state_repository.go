package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"papershort/src/database"
	"papershort/src/model"
)

// RuntimeStateRepository is the small key-value store of process continuity
// markers. The last-scan key is the sole mechanism for downtime detection,
// so Set must only be called once a cycle completed.
type RuntimeStateRepository struct {
	db *gorm.DB
}

func NewRuntimeStateRepository() *RuntimeStateRepository {
	return &RuntimeStateRepository{db: database.MainDB}
}

func NewRuntimeStateRepositoryWithDB(db *gorm.DB) *RuntimeStateRepository {
	return &RuntimeStateRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *RuntimeStateRepository) WithDB(db *gorm.DB) *RuntimeStateRepository {
	return &RuntimeStateRepository{db: db}
}

// Get returns the raw value for a key, or (nil, nil) when unset.
func (r *RuntimeStateRepository) Get(ctx context.Context, key string) (*string, error) {
	var state model.RuntimeState
	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(logger.Fields{
			"repo": "RuntimeStateRepository",
			"op":   "Get",
			"key":  key,
		}).WithError(err).Error("Failed to fetch runtime state")
		return nil, err
	}

	return &state.Value, nil
}

// Set upserts a key.
func (r *RuntimeStateRepository) Set(ctx context.Context, key, value string) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&model.RuntimeState{Key: key, Value: value, UpdatedAt: time.Now().UTC()}).Error

	if err != nil {
		logger.WithFields(logger.Fields{
			"repo": "RuntimeStateRepository",
			"op":   "Set",
			"key":  key,
		}).WithError(err).Error("Failed to set runtime state")
		return err
	}

	return nil
}

// GetTime parses a key holding an RFC3339Nano timestamp, (nil, nil) when
// unset or unparseable.
func (r *RuntimeStateRepository) GetTime(ctx context.Context, key string) (*time.Time, error) {
	raw, err := r.Get(ctx, key)
	if err != nil || raw == nil {
		return nil, err
	}

	t, err := time.Parse(model.RuntimeStateTimeLayout, *raw)
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":  "RuntimeStateRepository",
			"key":   key,
			"value": *raw,
		}).Warn("Unparseable runtime state timestamp, treating as unset")
		return nil, nil
	}

	return &t, nil
}

func (r *RuntimeStateRepository) SetTime(ctx context.Context, key string, t time.Time) error {
	return r.Set(ctx, key, t.UTC().Format(model.RuntimeStateTimeLayout))
}

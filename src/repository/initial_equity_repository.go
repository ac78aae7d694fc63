package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aitrader/src/database"
	"aitrader/src/model"
)

// InitialEquityRepository manages the single-row initial_equities table.
type InitialEquityRepository struct {
	db *gorm.DB
}

func NewInitialEquityRepository() *InitialEquityRepository {
	return &InitialEquityRepository{db: database.MainDB}
}

func (r *InitialEquityRepository) WithDB(db *gorm.DB) *InitialEquityRepository {
	return &InitialEquityRepository{db: db}
}

// Seed writes the row only if it doesn't already exist.
func (r *InitialEquityRepository) Seed(ctx context.Context, value float64) error {
	var existing model.InitialEquity
	err := r.db.WithContext(ctx).First(&existing, model.InitialEquitySingletonID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	row := &model.InitialEquity{ID: model.InitialEquitySingletonID, Value: value, UpdatedAt: time.Now()}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "InitialEquityRepository",
			"op":   "Seed",
		}).WithError(err).Error("failed to seed initial equity")
		return err
	}
	return nil
}

// Set overwrites the single row; last write wins.
func (r *InitialEquityRepository) Set(ctx context.Context, value float64) error {
	row := model.InitialEquity{ID: model.InitialEquitySingletonID, Value: value, UpdatedAt: time.Now()}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
}

func (r *InitialEquityRepository) Get(ctx context.Context) (*model.InitialEquity, error) {
	var row model.InitialEquity
	err := r.db.WithContext(ctx).First(&row, model.InitialEquitySingletonID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"aitrader/src/database"
	"aitrader/src/model"
)

// StrategyMessageRepository stores human-readable agent conclusions for the
// console chat view.
type StrategyMessageRepository struct {
	db *gorm.DB
}

func NewStrategyMessageRepository() *StrategyMessageRepository {
	return &StrategyMessageRepository{db: database.MainDB}
}

func (r *StrategyMessageRepository) WithDB(db *gorm.DB) *StrategyMessageRepository {
	return &StrategyMessageRepository{db: db}
}

func (r *StrategyMessageRepository) Insert(ctx context.Context, summary string) error {
	msg := &model.StrategyMessage{Summary: summary, CreatedAt: time.Now()}

	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "StrategyMessageRepository",
			"op":   "Insert",
		}).WithError(err).Error("failed to insert strategy message")
		return err
	}
	return nil
}

func (r *StrategyMessageRepository) FindLatest(ctx context.Context, limit int) ([]model.StrategyMessage, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []model.StrategyMessage
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "StrategyMessageRepository",
			"op":    "FindLatest",
			"limit": limit,
		}).WithError(err).Error("failed to fetch strategy messages")
		return nil, err
	}
	return rows, nil
}

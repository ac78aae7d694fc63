package repository

import (
	"context"
	"errors"
	"math"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"aitrader/src/database"
	"aitrader/src/model"
)

// BalanceRepository writes append-only valuation snapshots, skipping writes
// that don't move the needle by more than the configured thresholds.
type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository() *BalanceRepository {
	return &BalanceRepository{db: database.MainDB}
}

func (r *BalanceRepository) WithDB(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// InsertSnapshot inserts candidate unless the valuation delta against the
// latest row for the same asset is below both absThreshold and relThreshold.
// Returns whether a row was actually written.
func (r *BalanceRepository) InsertSnapshot(
	ctx context.Context,
	candidate *model.BalanceSnapshot,
	absThreshold, relThreshold float64,
) (bool, error) {
	var prev model.BalanceSnapshot
	err := r.db.WithContext(ctx).
		Where("asset = ?", candidate.Asset).
		Order("recorded_at DESC").
		First(&prev).Error

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.WithFields(map[string]interface{}{
			"repo":  "BalanceRepository",
			"op":    "InsertSnapshot",
			"asset": candidate.Asset,
		}).WithError(err).Error("failed to fetch previous balance snapshot")
		return false, err
	}

	if err == nil {
		delta := math.Abs(candidate.Valuation - prev.Valuation)
		relDelta := math.Inf(1)
		if prev.Valuation != 0 {
			relDelta = math.Abs(delta / prev.Valuation)
		}

		if delta < absThreshold && relDelta < relThreshold {
			logger.WithFields(map[string]interface{}{
				"repo":      "BalanceRepository",
				"op":        "InsertSnapshot",
				"asset":     candidate.Asset,
				"delta":     delta,
				"rel_delta": relDelta,
			}).Debug("balance snapshot below threshold, skipping")
			return false, nil
		}
	}

	if err := r.db.WithContext(ctx).Create(candidate).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "BalanceRepository",
			"op":    "InsertSnapshot",
			"asset": candidate.Asset,
		}).WithError(err).Error("failed to insert balance snapshot")
		return false, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "BalanceRepository",
		"op":        "InsertSnapshot",
		"asset":     candidate.Asset,
		"valuation": candidate.Valuation,
	}).Info("balance snapshot inserted")

	return true, nil
}

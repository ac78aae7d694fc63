package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"aitrader/src/database"
	"aitrader/src/model"
)

// PositionRepository maintains the single open row per (inst_id, pos_side)
// invariant and the append-only history of closed rows.
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// PositionSnapshot is what the reconciler knows about a position at the
// moment it writes, whether derived from an order_event or a
// position_snapshot message.
type PositionSnapshot struct {
	InstID        string
	PosSide       string
	TdMode        string
	Side          string
	Size          float64
	AvgPrice      *float64
	MarkPx        *float64
	Margin        *float64
	UnrealizedPnl *float64
	LastTradeAt   *time.Time
	ActionKind    string
	EntryOrdID    *string
	ExitOrdID     *string
	Metadata      string
}

// UpsertPosition implements the spec's upsert_position: identity is
// (inst_id, pos_side) restricted to the currently-open row. A snapshot with
// Size == 0 closes the open row instead of inserting a flat one.
func (r *PositionRepository) UpsertPosition(ctx context.Context, snap PositionSnapshot) error {
	logger.WithFields(map[string]interface{}{
		"repo":     "PositionRepository",
		"op":       "UpsertPosition",
		"inst_id":  snap.InstID,
		"pos_side": snap.PosSide,
		"size":     snap.Size,
	}).Debug("upserting position")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open model.Position
		err := tx.Where("inst_id = ? AND pos_side = ? AND closed_at IS NULL", snap.InstID, snap.PosSide).
			First(&open).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if snap.Size == 0 {
				// Nothing open, nothing to close; a flat snapshot of an
				// already-flat instrument is a no-op.
				return nil
			}
			row := model.Position{
				InstID:        snap.InstID,
				PosSide:       snap.PosSide,
				TdMode:        snap.TdMode,
				Side:          snap.Side,
				Size:          snap.Size,
				AvgPrice:      snap.AvgPrice,
				MarkPx:        snap.MarkPx,
				Margin:        snap.Margin,
				UnrealizedPnl: snap.UnrealizedPnl,
				LastTradeAt:   snap.LastTradeAt,
				EntryOrdID:    snap.EntryOrdID,
				Metadata:      snap.Metadata,
				UpdatedAt:     time.Now(),
				SnapshotID:    1,
			}
			return tx.Create(&row).Error

		case err != nil:
			return err

		default:
			if snap.Size == 0 {
				now := time.Now()
				updates := map[string]interface{}{
					"closed_at":   now,
					"updated_at":  now,
					"snapshot_id": open.SnapshotID + 1,
				}
				if snap.ExitOrdID != nil {
					updates["exit_ord_id"] = snap.ExitOrdID
				}
				if snap.ActionKind != "" {
					updates["action_kind"] = snap.ActionKind
				} else {
					updates["action_kind"] = model.ActionKindExit
				}
				return tx.Model(&model.Position{}).Where("id = ?", open.ID).Updates(updates).Error
			}

			updates := map[string]interface{}{
				"td_mode":        snap.TdMode,
				"side":           snap.Side,
				"size":           snap.Size,
				"avg_price":      snap.AvgPrice,
				"mark_px":        snap.MarkPx,
				"margin":         snap.Margin,
				"unrealized_pnl": snap.UnrealizedPnl,
				"metadata":       snap.Metadata,
				"updated_at":     time.Now(),
				"snapshot_id":    open.SnapshotID + 1,
			}
			if snap.LastTradeAt != nil {
				updates["last_trade_at"] = snap.LastTradeAt
			}
			return tx.Model(&model.Position{}).Where("id = ?", open.ID).Updates(updates).Error
		}
	})
}

// MarkForcedExit closes the open (inst_id, pos_side) row, if any, with
// action_kind=forced and no exit_ord_id — the periodic exchange sync could
// not attribute the closure to any order.
func (r *PositionRepository) MarkForcedExit(ctx context.Context, instID, posSide string) (bool, error) {
	now := time.Now()

	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("inst_id = ? AND pos_side = ? AND closed_at IS NULL", instID, posSide).
		Updates(map[string]interface{}{
			"closed_at":   now,
			"action_kind": model.ActionKindForced,
			"updated_at":  now,
			"snapshot_id": gorm.Expr("snapshot_id + 1"),
		})

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "PositionRepository",
			"op":       "MarkForcedExit",
			"inst_id":  instID,
			"pos_side": posSide,
		}).WithError(res.Error).Error("failed to mark forced exit")
		return false, res.Error
	}

	marked := res.RowsAffected > 0
	if marked {
		logger.WithFields(map[string]interface{}{
			"repo":     "PositionRepository",
			"op":       "MarkForcedExit",
			"inst_id":  instID,
			"pos_side": posSide,
		}).Warn("position marked forced exit")
	}
	return marked, nil
}

// OpenInstPosSides returns every open row that carries an entry_ord_id, for
// the periodic sync's disappearance check; open rows without an
// entry_ord_id are not returned.
func (r *PositionRepository) OpenInstPosSides(ctx context.Context) ([]model.Position, error) {
	var rows []model.Position
	err := r.db.WithContext(ctx).
		Where("closed_at IS NULL AND entry_ord_id IS NOT NULL").
		Find(&rows).Error
	return rows, err
}

// LatestByInstID returns the most recently updated row per inst_id, open or
// closed, for seeding the trigger registry's baseline at startup.
func (r *PositionRepository) LatestByInstID(ctx context.Context) (map[string]model.Position, error) {
	var rows []model.Position
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&rows).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "LatestByInstID",
		}).WithError(err).Error("failed to fetch positions for registry restore")
		return nil, err
	}

	latest := make(map[string]model.Position, len(rows))
	for _, row := range rows {
		if _, seen := latest[row.InstID]; !seen {
			latest[row.InstID] = row
		}
	}
	return latest, nil
}

// FetchSnapshots backs GET /account/positions and /account/positions/history.
func (r *PositionRepository) FetchSnapshots(
	ctx context.Context,
	includeHistory bool,
	symbol *string,
	limit int,
) ([]model.Position, error) {
	if limit <= 0 {
		limit = 100
	}

	q := r.db.WithContext(ctx).Model(&model.Position{})
	if !includeHistory {
		q = q.Where("closed_at IS NULL")
	}
	if symbol != nil {
		q = q.Where("inst_id = ?", *symbol)
	}

	var rows []model.Position
	err := q.Order("updated_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FetchSnapshots",
		}).WithError(err).Error("failed to fetch position snapshots")
		return nil, err
	}
	return rows, nil
}

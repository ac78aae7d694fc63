package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"aitrader/src/database"
	"aitrader/src/model"
)

// OrderRepository handles read/write operations for orders and the
// per-write audit trail in order_event_logs.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{db: database.MainDB}
}

// WithDB overrides the underlying *gorm.DB instance. Used by tests.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// UpsertOrderInput carries the fields the reconciler knows about an order at
// the moment an order_event (or task_result) arrives.
type UpsertOrderInput struct {
	OrdID      string
	InstID     string
	Side       string
	PosSide    string
	TdMode     string
	OrderType  string
	Price      *float64
	Size       float64
	FilledSize float64
	Status     string
	Leverage   *float64
	ActionKind string
	EntryOrdID *string
	ExitOrdID  *string
	Metadata   string
	EventAt    time.Time
	Source     string
}

// UpsertOrder keys on OrdID: on insert it populates every field and sets
// CreatedAt; on update it overwrites only the mutable fields and sets
// ClosedAt exactly once, the first time Status becomes terminal.
func (r *OrderRepository) UpsertOrder(ctx context.Context, in UpsertOrderInput) (*model.Order, error) {
	logger.WithFields(map[string]interface{}{
		"repo":    "OrderRepository",
		"op":      "UpsertOrder",
		"ord_id":  in.OrdID,
		"inst_id": in.InstID,
		"status":  in.Status,
	}).Debug("upserting order")

	var result model.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Order
		err := tx.Where("ord_id = ?", in.OrdID).First(&existing).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			result = model.Order{
				ID:          uuid.New().String(),
				OrdID:       in.OrdID,
				InstID:      in.InstID,
				Side:        in.Side,
				PosSide:     in.PosSide,
				TdMode:      in.TdMode,
				OrderType:   in.OrderType,
				Price:       in.Price,
				Size:        in.Size,
				FilledSize:  in.FilledSize,
				Status:      in.Status,
				Leverage:    in.Leverage,
				ActionKind:  in.ActionKind,
				EntryOrdID:  in.EntryOrdID,
				ExitOrdID:   in.ExitOrdID,
				Metadata:    in.Metadata,
				LastEventAt: in.EventAt,
				CreatedAt:   time.Now(),
			}
			if model.IsTerminalOrderStatus(in.Status) {
				now := time.Now()
				result.ClosedAt = &now
			}
			if err := tx.Create(&result).Error; err != nil {
				return err
			}

		case err != nil:
			return err

		default:
			result = existing
			updates := map[string]interface{}{
				"status":        in.Status,
				"filled_size":   in.FilledSize,
				"leverage":      in.Leverage,
				"td_mode":       in.TdMode,
				"metadata":      in.Metadata,
				"last_event_at": in.EventAt,
			}
			if in.ExitOrdID != nil {
				updates["exit_ord_id"] = in.ExitOrdID
			}
			if existing.InstID == "" && in.InstID != "" {
				updates["inst_id"], updates["side"], updates["pos_side"] = in.InstID, in.Side, in.PosSide
				updates["order_type"], updates["price"], updates["size"] = in.OrderType, in.Price, in.Size
				result.InstID, result.Side, result.PosSide = in.InstID, in.Side, in.PosSide
				result.OrderType, result.Price, result.Size = in.OrderType, in.Price, in.Size
			}
			if existing.ClosedAt == nil && model.IsTerminalOrderStatus(in.Status) {
				now := time.Now()
				updates["closed_at"] = now
				result.ClosedAt = &now
			}
			if err := tx.Model(&model.Order{}).Where("ord_id = ?", in.OrdID).Updates(updates).Error; err != nil {
				return err
			}
			result.Status = in.Status
			result.FilledSize = in.FilledSize
			result.Leverage = in.Leverage
			result.TdMode = in.TdMode
			result.Metadata = in.Metadata
			result.LastEventAt = in.EventAt
		}

		logEntry := &model.OrderEventLog{
			OrdID:      in.OrdID,
			Status:     in.Status,
			FilledSize: in.FilledSize,
			Price:      in.Price,
			Source:     in.Source,
			CreatedAt:  time.Now(),
		}
		return tx.Create(logEntry).Error
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "OrderRepository",
			"op":     "UpsertOrder",
			"ord_id": in.OrdID,
		}).WithError(err).Error("failed to upsert order")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "OrderRepository",
		"op":     "UpsertOrder",
		"ord_id": in.OrdID,
		"status": in.Status,
	}).Info("order upserted")

	return &result, nil
}

// FindByOrdID returns (nil, nil) when no order with that business key exists.
func (r *OrderRepository) FindByOrdID(ctx context.Context, ordID string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("ord_id = ?", ordID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":   "OrderRepository",
			"op":     "FindByOrdID",
			"ord_id": ordID,
		}).WithError(err).Error("failed to fetch order")
		return nil, err
	}
	return &order, nil
}

// FindLatest returns the most recently touched orders, newest first.
func (r *OrderRepository) FindLatest(ctx context.Context, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 20
	}

	var orders []model.Order
	err := r.db.WithContext(ctx).Order("last_event_at DESC").Limit(limit).Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "OrderRepository",
			"op":    "FindLatest",
			"limit": limit,
		}).WithError(err).Error("failed to fetch latest orders")
		return nil, err
	}
	return orders, nil
}

// MergeRealizedPnlIntoMetadata folds realized_pnl into the order's metadata
// JSON blob. Used as the pnl_update fallback when no trade row exists yet
// for the order; returns found=false rather than an error when the order
// itself doesn't exist, matching TradeRepository.SetRealizedPnl's shape.
func (r *OrderRepository) MergeRealizedPnlIntoMetadata(ctx context.Context, ordID string, pnl float64) (bool, error) {
	var found bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		err := tx.Where("ord_id = ?", ordID).First(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		meta := map[string]interface{}{}
		if order.Metadata != "" {
			if err := json.Unmarshal([]byte(order.Metadata), &meta); err != nil {
				meta = map[string]interface{}{}
			}
		}
		meta["realized_pnl"] = pnl

		raw, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return tx.Model(&model.Order{}).Where("ord_id = ?", ordID).Update("metadata", string(raw)).Error
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "OrderRepository",
			"op":     "MergeRealizedPnlIntoMetadata",
			"ord_id": ordID,
		}).WithError(err).Error("failed to merge realized pnl into order metadata")
		return false, err
	}
	return found, nil
}

// LatestEventAtByInstID returns the most recent last_event_at per inst_id,
// used as a schedule anchor at startup when no position row exists yet to
// supply a price baseline.
func (r *OrderRepository) LatestEventAtByInstID(ctx context.Context) (map[string]time.Time, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).Order("last_event_at DESC").Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "LatestEventAtByInstID",
		}).WithError(err).Error("failed to fetch orders for registry restore")
		return nil, err
	}

	latest := make(map[string]time.Time, len(orders))
	for _, o := range orders {
		if _, seen := latest[o.InstID]; !seen {
			latest[o.InstID] = o.LastEventAt
		}
	}
	return latest, nil
}

package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aitrader/src/database"
	"aitrader/src/model"
)

// TradeRepository is insert-only: every write keys on (ord_id, trade_id) or,
// when the exchange omits trade_id, on a deterministic fingerprint.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.MainDB}
}

func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// InsertTrade inserts t, silently doing nothing if a row with the same
// identity already exists — replaying the same event any number of times
// converges to a single row.
func (r *TradeRepository) InsertTrade(ctx context.Context, t *model.Trade) error {
	logger.WithFields(map[string]interface{}{
		"repo":        "TradeRepository",
		"op":          "InsertTrade",
		"ord_id":      t.OrdID,
		"fingerprint": t.Fingerprint,
	}).Debug("inserting trade")

	conflictColumns := []clause.Column{{Name: "fingerprint"}}
	if t.TradeID != nil {
		conflictColumns = []clause.Column{{Name: "ord_id"}, {Name: "trade_id"}}
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: conflictColumns, DoNothing: true}).
		Create(t).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradeRepository",
			"op":     "InsertTrade",
			"ord_id": t.OrdID,
		}).WithError(err).Error("failed to insert trade")
		return err
	}

	return nil
}

// FindByOrdID returns every trade recorded for an order, oldest first.
func (r *TradeRepository) FindByOrdID(ctx context.Context, ordID string) ([]model.Trade, error) {
	var trades []model.Trade
	err := r.db.WithContext(ctx).Where("ord_id = ?", ordID).Order("ts ASC").Find(&trades).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradeRepository",
			"op":     "FindByOrdID",
			"ord_id": ordID,
		}).WithError(err).Error("failed to fetch trades")
		return nil, err
	}
	return trades, nil
}

// NetFilledSize sums every trade belonging to orders on (instID, posSide),
// signed by the order's side (buy positive, sell negative), and returns a
// size-weighted average fill price. This is the reducer the reconciler
// uses to recompute position size from fills rather than trusting
// cumulative event deltas.
func (r *TradeRepository) NetFilledSize(ctx context.Context, instID, posSide string) (float64, *float64, error) {
	var rows []struct {
		Side       string
		FilledSize float64
		FillPrice  *float64
	}

	err := r.db.WithContext(ctx).
		Table("trades").
		Select("orders.side as side, trades.filled_size as filled_size, trades.fill_price as fill_price").
		Joins("JOIN orders ON orders.ord_id = trades.ord_id").
		Where("orders.inst_id = ? AND orders.pos_side = ?", instID, posSide).
		Scan(&rows).Error
	if err != nil {
		return 0, nil, err
	}

	var net, weightedSum, weightTotal float64
	for _, row := range rows {
		signed := row.FilledSize
		if row.Side == model.SideSell {
			signed = -signed
		}
		net += signed
		if row.FillPrice != nil {
			weightedSum += *row.FillPrice * row.FilledSize
			weightTotal += row.FilledSize
		}
	}

	var avgPrice *float64
	if weightTotal > 0 {
		avg := weightedSum / weightTotal
		avgPrice = &avg
	}

	return net, avgPrice, nil
}

// SetRealizedPnl attaches realized_pnl to the matching trade. Returns false
// if no trade exists yet for ordID (caller falls back to order metadata).
func (r *TradeRepository) SetRealizedPnl(ctx context.Context, ordID string, pnl float64) (bool, error) {
	var latest model.Trade
	err := r.db.WithContext(ctx).
		Where("ord_id = ?", ordID).
		Order("ts DESC").
		First(&latest).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}

	if err := r.db.WithContext(ctx).
		Model(&model.Trade{}).
		Where("id = ?", latest.ID).
		Update("realized_pnl", pnl).Error; err != nil {
		return false, err
	}

	return true, nil
}

package migrations

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"aitrader/src/model"
)

// backfillTradeFingerprint fills in the fingerprint column for any trade row
// that predates the column (fingerprint was empty at insert time). Rows that
// carry a trade_id are left alone since their identity doesn't depend on it.
func backfillTradeFingerprint(db *gorm.DB) error {
	type row struct {
		ID         uint
		OrdID      string
		TradeID    *string
		Ts         time.Time
		FillPrice  *float64
		FilledSize float64
	}

	var rows []row
	if err := db.Table("trades").
		Where("(fingerprint = '' OR fingerprint IS NULL) AND (trade_id IS NULL OR trade_id = '')").
		Select("id, ord_id, trade_id, ts, fill_price, filled_size").
		Find(&rows).Error; err != nil {
		return fmt.Errorf("select trades missing fingerprint: %w", err)
	}

	for _, r := range rows {
		price := 0.0
		if r.FillPrice != nil {
			price = *r.FillPrice
		}
		fingerprint := model.ComputeTradeFingerprint(r.OrdID, r.Ts, price, r.FilledSize)

		if err := db.Table("trades").Where("id = ?", r.ID).Update("fingerprint", fingerprint).Error; err != nil {
			return fmt.Errorf("backfill fingerprint for trade %d: %w", r.ID, err)
		}
	}

	return nil
}

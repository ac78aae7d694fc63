package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Trade is an insert-only fill record. Unique by (OrdID, TradeID) when the
// exchange reports a trade id, otherwise by Fingerprint.
type Trade struct {
	ID uint `gorm:"primaryKey" json:"id"`

	OrdID   string  `gorm:"size:100;uniqueIndex:idx_trade_ord_trade,priority:1;not null" json:"ord_id"`
	TradeID *string `gorm:"size:100;uniqueIndex:idx_trade_ord_trade,priority:2" json:"trade_id,omitempty"`

	// Fingerprint is populated whenever TradeID is absent:
	// hash(ord_id, ts, price, filled_size). Uniquely indexed so replays of
	// the same order_event converge to a single row.
	Fingerprint string `gorm:"size:64;uniqueIndex" json:"fingerprint,omitempty"`

	InstID      string   `gorm:"size:50;index" json:"inst_id"`
	Side        string   `gorm:"size:10" json:"side"`
	FilledSize  float64  `json:"filled_size"`
	FillPrice   *float64 `json:"fill_price,omitempty"`
	Fee         *float64 `json:"fee,omitempty"`
	RealizedPnl *float64 `json:"realized_pnl,omitempty"`

	Ts       time.Time `json:"ts"`
	Metadata string    `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Trade) TableName() string { return "trades" }

// ComputeTradeFingerprint derives the dedup key used when the exchange gives
// no trade id: hash(ord_id, ts, price, filled_size). Callers must use this
// exact formula everywhere a fingerprint is produced, including migrations,
// or replays of the same fill will no longer collide on the unique index.
func ComputeTradeFingerprint(ordID string, ts time.Time, price, filledSize float64) string {
	raw := fmt.Sprintf("%s|%d|%.8f|%.8f", ordID, ts.UnixNano(), price, filledSize)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

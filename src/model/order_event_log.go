package model

import "time"

// OrderEventLog is an append-only audit trail written alongside every
// upsert_order call, mirroring the order row's mutable fields at that
// moment. One row per reconciler write, never updated.
type OrderEventLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	OrdID      string   `gorm:"size:100;index;not null" json:"ord_id"`
	Status     string   `gorm:"size:30" json:"status"`
	FilledSize float64  `json:"filled_size"`
	Price      *float64 `json:"price,omitempty"`
	Source     string   `gorm:"size:30" json:"source"` // which inbound message caused this write
	CreatedAt  time.Time `json:"created_at"`
}

func (OrderEventLog) TableName() string { return "order_event_logs" }

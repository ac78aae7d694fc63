package model

import "time"

// BalanceSnapshot is append-only; a new row is skipped only when the
// valuation moves by less than both an absolute and a relative threshold
// against the previous row for the same asset.
type BalanceSnapshot struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Asset      string    `gorm:"size:20;index;not null" json:"asset"`
	Available  float64   `json:"available"`
	Locked     float64   `json:"locked"`
	Valuation  float64   `json:"valuation"`
	Source     string    `gorm:"size:30" json:"source"`
	RecordedAt time.Time `gorm:"index" json:"recorded_at"`
}

func (BalanceSnapshot) TableName() string { return "balances" }

package model

import "time"

// StrategyMessage is an append-only human-readable conclusion produced by an
// agent analysis; surfaced verbatim to the console chat view.
type StrategyMessage struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Summary   string    `gorm:"type:text;not null" json:"summary"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (StrategyMessage) TableName() string { return "strategies" }

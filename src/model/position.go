package model

import "time"

// Position is the current (or historical, once closed) state of one
// (inst_id, pos_side) pair, derived from orders+trades+exchange snapshots —
// never treated as independently authoritative.
type Position struct {
	ID uint `gorm:"primaryKey" json:"id"`

	InstID  string `gorm:"size:50;index:idx_position_open,priority:1;not null" json:"inst_id"`
	PosSide string `gorm:"size:10;index:idx_position_open,priority:2;not null" json:"pos_side"`
	TdMode  string `gorm:"size:20" json:"td_mode,omitempty"`
	Side    string `gorm:"size:10;not null" json:"side"`

	Size           float64  `json:"size"`
	AvgPrice       *float64 `json:"avg_price,omitempty"`
	MarkPx         *float64 `json:"mark_px,omitempty"`
	Margin         *float64 `json:"margin,omitempty"`
	UnrealizedPnl  *float64 `json:"unrealized_pnl,omitempty"`
	LastTradeAt    *time.Time `json:"last_trade_at,omitempty"`

	ActionKind string  `gorm:"size:20" json:"action_kind,omitempty"`
	EntryOrdID *string `gorm:"size:100" json:"entry_ord_id,omitempty"`
	ExitOrdID  *string `gorm:"size:100" json:"exit_ord_id,omitempty"`

	Metadata   string     `gorm:"type:jsonb" json:"metadata,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ClosedAt   *time.Time `gorm:"index:idx_position_open,priority:3" json:"closed_at,omitempty"`

	// SnapshotID is bumped every time this row is written, giving history
	// consumers a monotonic ordering even within the same UpdatedAt tick.
	SnapshotID uint64 `json:"snapshot_id"`
}

func (Position) TableName() string { return "positions" }

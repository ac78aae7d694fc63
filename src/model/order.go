package model

import "time"

// Side and position-side enums used across orders, trades and positions.
const (
	SideBuy  = "buy"
	SideSell = "sell"

	PosSideLong  = "long"
	PosSideShort = "short"
	PosSideNet   = "net"
)

// ActionKind records who/what caused an order or a position transition.
const (
	ActionKindAgent  = "agent"
	ActionKindManual = "manual"
	ActionKindForced = "forced"
	ActionKindExit   = "exit"
)

// Order statuses considered terminal; closed_at is set exactly once when an
// order first enters one of these.
var terminalOrderStatuses = map[string]bool{
	"filled":   true,
	"canceled": true,
	"rejected": true,
}

// IsTerminalOrderStatus reports whether status belongs to the terminal set.
func IsTerminalOrderStatus(status string) bool {
	return terminalOrderStatuses[status]
}

// Order represents one exchange order as tracked by the reconciler. Unique
// business key is OrdID; ID is the internal identity.
type Order struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	OrdID   string `gorm:"size:100;uniqueIndex;not null" json:"ord_id"`
	InstID  string `gorm:"size:50;index;not null" json:"inst_id"`
	Side    string `gorm:"size:10;not null" json:"side"`
	PosSide string `gorm:"size:10;not null" json:"pos_side"`
	TdMode  string `gorm:"size:20" json:"td_mode,omitempty"`

	OrderType string   `gorm:"size:30;not null" json:"order_type"`
	Price     *float64 `json:"price,omitempty"`
	Size      float64  `json:"size"`
	FilledSize float64 `json:"filled_size"`
	Status    string   `gorm:"size:30;not null;default:open;index" json:"status"`
	Leverage  *float64 `json:"leverage,omitempty"`

	ActionKind string `gorm:"size:20;not null" json:"action_kind"`

	EntryOrdID *string `gorm:"size:100;index" json:"entry_ord_id,omitempty"`
	ExitOrdID  *string `gorm:"size:100;index" json:"exit_ord_id,omitempty"`

	LastEventAt time.Time `json:"last_event_at"`
	Metadata    string    `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

func (Order) TableName() string { return "orders" }

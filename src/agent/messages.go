package agent

import "encoding/json"

// Wire message types exchanged with the agent over the WebSocket. Unknown
// types are logged and dropped, never propagated, per strict typed dispatch.
const (
	TypeTaskRequest      = "task_request"
	TypeTaskResult       = "task_result"
	TypeOrderEvent       = "order_event"
	TypePnlUpdate        = "pnl_update"
	TypePositionSnapshot = "position_snapshot"
	TypeAnalysisError    = "analysis_error"
	TypeAck              = "ok"
)

// TaskRequest is sent outbound to request an analysis run.
type TaskRequest struct {
	Type    string                 `json:"type"`
	TaskID  string                 `json:"task_id"`
	Payload map[string]interface{} `json:"payload"`
}

// envelope is used only to sniff the "type" discriminator before decoding
// into the concrete message.
type envelope struct {
	Type string `json:"type"`
}

// TaskResult is the agent's response to a task_request.
type TaskResult struct {
	Type    string                 `json:"type"`
	TaskID  string                 `json:"task_id"`
	Status  string                 `json:"status"` // accepted | rejected | completed
	Summary *string                `json:"summary,omitempty"`
	OrdID   *string                `json:"ord_id,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// OrderEvent reports an order state change from the exchange, relayed by
// the agent.
type OrderEvent struct {
	Type       string                 `json:"type"`
	OrdID      string                 `json:"ord_id"`
	Status     string                 `json:"status"`
	FilledSize *float64               `json:"filled_size,omitempty"`
	AvgPx      *float64               `json:"avg_px,omitempty"`
	EventTs    int64                  `json:"event_ts"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// PnlUpdate attaches realized PnL to a previously-seen order/trade.
type PnlUpdate struct {
	Type         string  `json:"type"`
	OrdID        string  `json:"ord_id"`
	RealizedPnl  float64 `json:"realized_pnl"`
	PnlTs        int64   `json:"pnl_ts"`
	InstID       string  `json:"inst_id"`
}

// PositionSnapshot is the agent's periodic/event-driven report of every
// open position and (optionally) balances it observed.
type PositionSnapshot struct {
	Type      string                   `json:"type"`
	Positions []PositionSnapshotEntry  `json:"positions"`
	Balances  []map[string]interface{} `json:"balances,omitempty"`
}

type PositionSnapshotEntry struct {
	InstID        string   `json:"inst_id"`
	PosSide       string   `json:"pos_side"`
	TdMode        string   `json:"td_mode,omitempty"`
	Side          string   `json:"side"`
	Size          float64  `json:"size"`
	AvgPrice      *float64 `json:"avg_price,omitempty"`
	MarkPx        *float64 `json:"mark_px,omitempty"`
	Margin        *float64 `json:"margin,omitempty"`
	UnrealizedPnl *float64 `json:"unrealized_pnl,omitempty"`
}

// AnalysisError reports a failure in the agent's own analysis pipeline.
type AnalysisError struct {
	Type      string  `json:"type"`
	TaskID    *string `json:"task_id,omitempty"`
	Error     string  `json:"error"`
	Retriable *bool   `json:"retriable,omitempty"`
}

// InboundEvent is the sum type handed to the reconciler's event stream.
// Exactly one field is non-nil.
type InboundEvent struct {
	TaskResult       *TaskResult
	OrderEvent       *OrderEvent
	PnlUpdate        *PnlUpdate
	PositionSnapshot *PositionSnapshot
	AnalysisError    *AnalysisError
}

// decodeInbound type-dispatches a raw frame on its "type" field. Malformed
// frames and unknown types return ok=false and are meant to be logged and
// dropped by the caller, never treated as fatal.
func decodeInbound(raw []byte) (InboundEvent, bool) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return InboundEvent{}, false
	}

	switch env.Type {
	case TypeTaskResult:
		var m TaskResult
		if json.Unmarshal(raw, &m) != nil {
			return InboundEvent{}, false
		}
		return InboundEvent{TaskResult: &m}, true
	case TypeOrderEvent:
		var m OrderEvent
		if json.Unmarshal(raw, &m) != nil {
			return InboundEvent{}, false
		}
		return InboundEvent{OrderEvent: &m}, true
	case TypePnlUpdate:
		var m PnlUpdate
		if json.Unmarshal(raw, &m) != nil {
			return InboundEvent{}, false
		}
		return InboundEvent{PnlUpdate: &m}, true
	case TypePositionSnapshot:
		var m PositionSnapshot
		if json.Unmarshal(raw, &m) != nil {
			return InboundEvent{}, false
		}
		return InboundEvent{PositionSnapshot: &m}, true
	case TypeAnalysisError:
		var m AnalysisError
		if json.Unmarshal(raw, &m) != nil {
			return InboundEvent{}, false
		}
		return InboundEvent{AnalysisError: &m}, true
	default:
		return InboundEvent{}, false
	}
}

package agent

import (
	"context"
	"testing"
)

func TestDecodeInbound_RoutesKnownTypes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want func(InboundEvent) bool
	}{
		{"task_result", `{"type":"task_result","task_id":"t1","status":"completed"}`, func(e InboundEvent) bool { return e.TaskResult != nil && e.TaskResult.TaskID == "t1" }},
		{"order_event", `{"type":"order_event","ord_id":"o1","status":"filled"}`, func(e InboundEvent) bool { return e.OrderEvent != nil && e.OrderEvent.OrdID == "o1" }},
		{"pnl_update", `{"type":"pnl_update","ord_id":"o1","realized_pnl":12.5}`, func(e InboundEvent) bool { return e.PnlUpdate != nil && e.PnlUpdate.RealizedPnl == 12.5 }},
		{"position_snapshot", `{"type":"position_snapshot","positions":[{"inst_id":"BTC-USDT-SWAP"}]}`, func(e InboundEvent) bool {
			return e.PositionSnapshot != nil && len(e.PositionSnapshot.Positions) == 1
		}},
		{"analysis_error", `{"type":"analysis_error","task_id":"t1","error":"boom"}`, func(e InboundEvent) bool {
			return e.AnalysisError != nil && e.AnalysisError.TaskID != nil && *e.AnalysisError.TaskID == "t1"
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, ok := decodeInbound([]byte(tc.raw))
			if !ok {
				t.Fatalf("expected ok=true for %s", tc.name)
			}
			if !tc.want(event) {
				t.Fatalf("decoded event did not match expectations: %+v", event)
			}
		})
	}
}

func TestDecodeInbound_DropsUnknownAndMalformed(t *testing.T) {
	if _, ok := decodeInbound([]byte(`{"type":"something_new"}`)); ok {
		t.Fatalf("expected unknown type to be dropped")
	}
	if _, ok := decodeInbound([]byte(`not json`)); ok {
		t.Fatalf("expected malformed frame to be dropped")
	}
}

func TestDispatch_ResolvesPendingRequestBeforeEmittingEvent(t *testing.T) {
	c := New(Config{RequestTimeout: 0})
	resultCh := make(chan pendingResult, 1)
	c.pending["t1"] = resultCh

	c.ctx = context.Background()
	c.dispatch([]byte(`{"type":"task_result","task_id":"t1","status":"completed"}`))

	select {
	case res := <-resultCh:
		if res.result == nil || res.result.TaskID != "t1" {
			t.Fatalf("expected resolved result for t1, got %+v", res)
		}
	default:
		t.Fatalf("expected the pending awaiter to be resolved")
	}

	select {
	case event := <-c.events:
		if event.TaskResult == nil || event.TaskResult.TaskID != "t1" {
			t.Fatalf("expected the same task_result to also be forwarded to events")
		}
	default:
		t.Fatalf("expected the event to be forwarded to the reconciler stream")
	}
}

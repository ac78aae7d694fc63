package repository_test

import (
	"context"
	"testing"

	"aitrader/src/model"
	"aitrader/src/repository"
)

func TestUpsertPosition_OpenThenClose(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewPositionRepository().WithDB(db)

	avg := 65000.0
	err := repo.UpsertPosition(ctx, repository.PositionSnapshot{
		InstID: "BTC-USDT-SWAP", PosSide: model.PosSideLong, Side: model.SideBuy,
		Size: 1, AvgPrice: &avg, ActionKind: model.ActionKindAgent,
	})
	if err != nil {
		t.Fatalf("open upsert failed: %v", err)
	}

	open, err := repo.OpenInstPosSides(ctx)
	if err != nil {
		t.Fatalf("OpenInstPosSides failed: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected 0 rows with entry_ord_id set (none provided), got %d", len(open))
	}

	rows, err := repo.FetchSnapshots(ctx, false, nil, 10)
	if err != nil {
		t.Fatalf("FetchSnapshots failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ClosedAt != nil {
		t.Fatalf("expected 1 open row, got %+v", rows)
	}

	if err := repo.UpsertPosition(ctx, repository.PositionSnapshot{
		InstID: "BTC-USDT-SWAP", PosSide: model.PosSideLong, Side: model.SideBuy, Size: 0,
	}); err != nil {
		t.Fatalf("close upsert failed: %v", err)
	}

	rows, err = repo.FetchSnapshots(ctx, false, nil, 10)
	if err != nil {
		t.Fatalf("FetchSnapshots (open only) failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected 0 open rows after close, got %d", len(rows))
	}

	rows, err = repo.FetchSnapshots(ctx, true, nil, 10)
	if err != nil {
		t.Fatalf("FetchSnapshots (history) failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ClosedAt == nil {
		t.Fatalf("expected 1 closed row in history, got %+v", rows)
	}
	if rows[0].ActionKind != model.ActionKindExit {
		t.Fatalf("expected default close action_kind=exit, got %q", rows[0].ActionKind)
	}
}

func TestMarkForcedExit_OnlyAffectsOpenRow(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewPositionRepository().WithDB(db)

	avg := 100.0
	if err := repo.UpsertPosition(ctx, repository.PositionSnapshot{
		InstID: "ETH-USDT-SWAP", PosSide: model.PosSideShort, Side: model.SideSell, Size: 2, AvgPrice: &avg,
	}); err != nil {
		t.Fatalf("open upsert failed: %v", err)
	}

	marked, err := repo.MarkForcedExit(ctx, "ETH-USDT-SWAP", model.PosSideShort)
	if err != nil {
		t.Fatalf("MarkForcedExit failed: %v", err)
	}
	if !marked {
		t.Fatalf("expected the open row to be marked")
	}

	marked, err = repo.MarkForcedExit(ctx, "ETH-USDT-SWAP", model.PosSideShort)
	if err != nil {
		t.Fatalf("second MarkForcedExit call failed: %v", err)
	}
	if marked {
		t.Fatalf("expected no-op on an already-closed row")
	}
}

func TestLatestByInstID_PicksMostRecentRowPerInstrument(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewPositionRepository().WithDB(db)

	stale := 100.0
	if err := repo.UpsertPosition(ctx, repository.PositionSnapshot{
		InstID: "BTC-USDT-SWAP", PosSide: model.PosSideLong, Side: model.SideBuy, Size: 1, AvgPrice: &stale,
	}); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	fresh := 105.0
	if err := repo.UpsertPosition(ctx, repository.PositionSnapshot{
		InstID: "BTC-USDT-SWAP", PosSide: model.PosSideLong, Side: model.SideBuy, Size: 0,
	}); err != nil {
		t.Fatalf("close upsert failed: %v", err)
	}
	if err := repo.UpsertPosition(ctx, repository.PositionSnapshot{
		InstID: "BTC-USDT-SWAP", PosSide: model.PosSideLong, Side: model.SideBuy, Size: 2, AvgPrice: &fresh,
	}); err != nil {
		t.Fatalf("reopen upsert failed: %v", err)
	}

	latest, err := repo.LatestByInstID(ctx)
	if err != nil {
		t.Fatalf("LatestByInstID failed: %v", err)
	}
	row, ok := latest["BTC-USDT-SWAP"]
	if !ok {
		t.Fatalf("expected a row for BTC-USDT-SWAP")
	}
	if row.AvgPrice == nil || *row.AvgPrice != 105 {
		t.Fatalf("expected the most recently updated row (avg_price=105), got %+v", row.AvgPrice)
	}
}

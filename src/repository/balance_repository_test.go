package repository_test

import (
	"context"
	"testing"
	"time"

	"aitrader/src/model"
	"aitrader/src/repository"
)

func TestInsertSnapshot_SkipsBelowThreshold(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewBalanceRepository().WithDB(db)

	first := &model.BalanceSnapshot{Asset: "USDT", Valuation: 1000, RecordedAt: time.Now()}
	inserted, err := repo.InsertSnapshot(ctx, first, 1, 0.0001)
	if err != nil || !inserted {
		t.Fatalf("expected first snapshot to insert, got inserted=%v err=%v", inserted, err)
	}

	tiny := &model.BalanceSnapshot{Asset: "USDT", Valuation: 1000.00001, RecordedAt: time.Now()}
	inserted, err = repo.InsertSnapshot(ctx, tiny, 1, 0.0001)
	if err != nil {
		t.Fatalf("InsertSnapshot failed: %v", err)
	}
	if inserted {
		t.Fatalf("expected a sub-threshold move to be skipped")
	}

	moved := &model.BalanceSnapshot{Asset: "USDT", Valuation: 1050, RecordedAt: time.Now()}
	inserted, err = repo.InsertSnapshot(ctx, moved, 1, 0.0001)
	if err != nil || !inserted {
		t.Fatalf("expected a move past threshold to insert, got inserted=%v err=%v", inserted, err)
	}
}

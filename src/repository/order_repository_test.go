package repository_test

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"aitrader/src/model"
	"aitrader/src/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}

	if err := db.AutoMigrate(
		&model.Order{}, &model.OrderEventLog{}, &model.Trade{}, &model.Position{},
		&model.BalanceSnapshot{}, &model.StrategyMessage{}, &model.InitialEquity{}, &model.Exception{},
	); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}

	return db
}

func TestUpsertOrder_InsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewOrderRepository().WithDB(db)

	price := 65000.0
	created, err := repo.UpsertOrder(ctx, repository.UpsertOrderInput{
		OrdID:      "ord-1",
		InstID:     "BTC-USDT-SWAP",
		Side:       model.SideBuy,
		PosSide:    model.PosSideLong,
		OrderType:  "market",
		Price:      &price,
		Size:       1,
		FilledSize: 0,
		Status:     "open",
		ActionKind: model.ActionKindAgent,
		EventAt:    time.Now(),
		Source:     "task_result",
	})
	if err != nil {
		t.Fatalf("UpsertOrder insert failed: %v", err)
	}
	if created.ClosedAt != nil {
		t.Fatalf("expected open order to have nil ClosedAt")
	}

	updated, err := repo.UpsertOrder(ctx, repository.UpsertOrderInput{
		OrdID:      "ord-1",
		InstID:     "BTC-USDT-SWAP",
		Side:       model.SideBuy,
		PosSide:    model.PosSideLong,
		OrderType:  "market",
		Price:      &price,
		Size:       1,
		FilledSize: 1,
		Status:     "filled",
		ActionKind: model.ActionKindAgent,
		EventAt:    time.Now(),
		Source:     "order_event",
	})
	if err != nil {
		t.Fatalf("UpsertOrder update failed: %v", err)
	}
	if updated.ClosedAt == nil {
		t.Fatalf("expected filled order to have ClosedAt set")
	}
	if updated.FilledSize != 1 {
		t.Fatalf("expected filled_size 1, got %v", updated.FilledSize)
	}

	var logCount int64
	db.Model(&model.OrderEventLog{}).Where("ord_id = ?", "ord-1").Count(&logCount)
	if logCount != 2 {
		t.Fatalf("expected 2 audit log rows, got %d", logCount)
	}
}

func TestFindByOrdID_NotFoundReturnsNilNil(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewOrderRepository().WithDB(db)

	order, err := repo.FindByOrdID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if order != nil {
		t.Fatalf("expected nil order for missing ord_id")
	}
}

func TestLatestEventAtByInstID_PicksMostRecentPerInstrument(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewOrderRepository().WithDB(db)

	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	if _, err := repo.UpsertOrder(ctx, repository.UpsertOrderInput{
		OrdID: "ord-1", InstID: "BTC-USDT-SWAP", Side: model.SideBuy, PosSide: model.PosSideLong,
		OrderType: "market", Size: 1, Status: "open", ActionKind: model.ActionKindAgent,
		EventAt: older, Source: "order_event",
	}); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if _, err := repo.UpsertOrder(ctx, repository.UpsertOrderInput{
		OrdID: "ord-2", InstID: "BTC-USDT-SWAP", Side: model.SideBuy, PosSide: model.PosSideLong,
		OrderType: "market", Size: 1, Status: "open", ActionKind: model.ActionKindAgent,
		EventAt: newer, Source: "order_event",
	}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	latest, err := repo.LatestEventAtByInstID(ctx)
	if err != nil {
		t.Fatalf("LatestEventAtByInstID failed: %v", err)
	}
	got, ok := latest["BTC-USDT-SWAP"]
	if !ok {
		t.Fatalf("expected an entry for BTC-USDT-SWAP")
	}
	if !got.Equal(newer) {
		t.Fatalf("expected the most recent last_event_at, got %v want %v", got, newer)
	}
}

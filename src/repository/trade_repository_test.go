package repository_test

import (
	"context"
	"testing"
	"time"

	"aitrader/src/model"
	"aitrader/src/repository"
)

func TestInsertTrade_DedupByFingerprint(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewTradeRepository().WithDB(db)

	ts := time.Now()
	price := 100.0
	fp := model.ComputeTradeFingerprint("ord-1", ts, price, 0.5)

	trade := &model.Trade{OrdID: "ord-1", Fingerprint: fp, InstID: "BTC-USDT-SWAP", Side: model.SideBuy, FilledSize: 0.5, FillPrice: &price, Ts: ts}
	if err := repo.InsertTrade(ctx, trade); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	replay := &model.Trade{OrdID: "ord-1", Fingerprint: fp, InstID: "BTC-USDT-SWAP", Side: model.SideBuy, FilledSize: 0.5, FillPrice: &price, Ts: ts}
	if err := repo.InsertTrade(ctx, replay); err != nil {
		t.Fatalf("replay insert failed: %v", err)
	}

	trades, err := repo.FindByOrdID(ctx, "ord-1")
	if err != nil {
		t.Fatalf("FindByOrdID failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected replay to converge to 1 row, got %d", len(trades))
	}
}

func TestInsertTrade_DedupByTradeID(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewTradeRepository().WithDB(db)

	tradeID := "ex-trade-1"
	price := 100.0
	trade := &model.Trade{OrdID: "ord-2", TradeID: &tradeID, InstID: "BTC-USDT-SWAP", Side: model.SideSell, FilledSize: 0.25, FillPrice: &price, Ts: time.Now()}
	if err := repo.InsertTrade(ctx, trade); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := repo.InsertTrade(ctx, &model.Trade{OrdID: "ord-2", TradeID: &tradeID, InstID: "BTC-USDT-SWAP", Side: model.SideSell, FilledSize: 0.25, FillPrice: &price, Ts: time.Now()}); err != nil {
		t.Fatalf("replay insert failed: %v", err)
	}

	trades, err := repo.FindByOrdID(ctx, "ord-2")
	if err != nil {
		t.Fatalf("FindByOrdID failed: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected replay to converge to 1 row, got %d", len(trades))
	}
}

func TestNetFilledSize_SignsByOrderSide(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	orders := repository.NewOrderRepository().WithDB(db)
	trades := repository.NewTradeRepository().WithDB(db)

	buyPrice, sellPrice := 100.0, 110.0

	if _, err := orders.UpsertOrder(ctx, repository.UpsertOrderInput{
		OrdID: "buy-1", InstID: "BTC-USDT-SWAP", Side: model.SideBuy, PosSide: model.PosSideLong,
		OrderType: "market", Price: &buyPrice, Size: 1, FilledSize: 1, Status: "filled",
		ActionKind: model.ActionKindAgent, EventAt: time.Now(),
	}); err != nil {
		t.Fatalf("upsert buy order: %v", err)
	}
	if _, err := orders.UpsertOrder(ctx, repository.UpsertOrderInput{
		OrdID: "sell-1", InstID: "BTC-USDT-SWAP", Side: model.SideSell, PosSide: model.PosSideLong,
		OrderType: "market", Price: &sellPrice, Size: 0.4, FilledSize: 0.4, Status: "filled",
		ActionKind: model.ActionKindExit, EventAt: time.Now(),
	}); err != nil {
		t.Fatalf("upsert sell order: %v", err)
	}

	if err := trades.InsertTrade(ctx, &model.Trade{
		OrdID: "buy-1", Fingerprint: model.ComputeTradeFingerprint("buy-1", time.Now(), buyPrice, 1), InstID: "BTC-USDT-SWAP", Side: model.SideBuy, FilledSize: 1, FillPrice: &buyPrice, Ts: time.Now(),
	}); err != nil {
		t.Fatalf("insert buy trade: %v", err)
	}
	if err := trades.InsertTrade(ctx, &model.Trade{
		OrdID: "sell-1", Fingerprint: model.ComputeTradeFingerprint("sell-1", time.Now(), sellPrice, 0.4), InstID: "BTC-USDT-SWAP", Side: model.SideSell, FilledSize: 0.4, FillPrice: &sellPrice, Ts: time.Now(),
	}); err != nil {
		t.Fatalf("insert sell trade: %v", err)
	}

	net, avgPrice, err := trades.NetFilledSize(ctx, "BTC-USDT-SWAP", model.PosSideLong)
	if err != nil {
		t.Fatalf("NetFilledSize failed: %v", err)
	}
	if net != 0.6 {
		t.Fatalf("expected net 0.6, got %v", net)
	}
	if avgPrice == nil {
		t.Fatalf("expected a non-nil weighted average price")
	}
}

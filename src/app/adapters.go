package app

import (
	"context"

	"aitrader/src/agent"
	"aitrader/src/balance"
	"aitrader/src/exchange"
	"aitrader/src/reconciler"
	"aitrader/src/trigger"
)

// agentRequester adapts *agent.Channel to trigger.AgentRequester, narrowing
// agent.TaskResult down to the coordinator's TaskOutcome view.
type agentRequester struct {
	channel *agent.Channel
}

func (a *agentRequester) Request(ctx context.Context, action, instID string, extra map[string]interface{}) (*trigger.TaskOutcome, error) {
	result, err := a.channel.Request(ctx, action, instID, extra)
	if err != nil {
		return nil, err
	}
	return &trigger.TaskOutcome{Status: result.Status, Summary: result.Summary, OrdID: result.OrdID}, nil
}

// tickerFetcher adapts *exchange.Client to volatility.TickerFetcher.
type tickerFetcher struct {
	client *exchange.Client
}

func (t *tickerFetcher) GetTicker(instID string) (float64, error) {
	ticker, err := t.client.GetTicker(instID)
	if err != nil {
		return 0, err
	}
	return ticker.Last, nil
}

// exchangePositions adapts *exchange.Client to reconciler.ExchangePositions.
type exchangePositions struct {
	client *exchange.Client
}

func (e *exchangePositions) GetPositions() ([]reconciler.ExchPosition, error) {
	positions, err := e.client.GetPositions()
	if err != nil {
		return nil, err
	}
	out := make([]reconciler.ExchPosition, 0, len(positions))
	for _, p := range positions {
		out = append(out, reconciler.ExchPosition{InstID: p.InstID, PosSide: p.PosSide})
	}
	return out, nil
}

func (e *exchangePositions) GetOrderHistory(limit int) ([]reconciler.ExchOrder, error) {
	orders, err := e.client.GetOrderHistory("", limit)
	if err != nil {
		return nil, err
	}
	out := make([]reconciler.ExchOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, reconciler.ExchOrder{
			OrdID:      o.OrdID,
			InstID:     o.InstID,
			Side:       o.Side,
			PosSide:    o.PosSide,
			TdMode:     o.TdMode,
			OrderType:  o.OrderType,
			Price:      o.Price,
			Size:       o.Size,
			FilledSize: o.FilledSize,
			Status:     o.Status,
			UpdatedAt:  o.UpdatedAt,
		})
	}
	return out, nil
}

func (e *exchangePositions) GetFills(ordID string, limit int) ([]reconciler.ExchFill, error) {
	fills, err := e.client.GetFills(ordID, "", limit)
	if err != nil {
		return nil, err
	}
	out := make([]reconciler.ExchFill, 0, len(fills))
	for _, f := range fills {
		out = append(out, reconciler.ExchFill{
			OrdID:     f.OrdID,
			TradeID:   f.TradeID,
			InstID:    f.InstID,
			Side:      f.Side,
			FillSize:  f.FillSize,
			FillPrice: f.FillPrice,
			Fee:       f.Fee,
			Ts:        f.Ts,
		})
	}
	return out, nil
}

// balanceFetcher adapts *exchange.Client to balance.BalanceFetcher.
type balanceFetcher struct {
	client *exchange.Client
}

func (b *balanceFetcher) GetBalance(ccy string) (*balance.ExchBalance, error) {
	bal, err := b.client.GetBalance(ccy)
	if err != nil {
		return nil, err
	}
	return &balance.ExchBalance{Ccy: bal.Ccy, Available: bal.Available, Frozen: bal.Frozen, Valuation: bal.Valuation}, nil
}

package exchange

import "time"

// Ticker is the latest traded price for an instrument.
type Ticker struct {
	InstID string
	Last   float64
	Ts     time.Time
}

// Candle is one OHLCV bar.
type Candle struct {
	Ts     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Position mirrors the exchange's view of an open position.
type Position struct {
	InstID        string
	PosSide       string
	Side          string
	Size          float64
	AvgPx         *float64
	MarkPx        *float64
	Margin        *float64
	UnrealizedPnl *float64
}

// Order mirrors the exchange's order history entry.
type Order struct {
	OrdID      string
	InstID     string
	Side       string
	PosSide    string
	TdMode     string
	OrderType  string
	Price      *float64
	Size       float64
	FilledSize float64
	Status     string
	UpdatedAt  time.Time
}

// Fill mirrors one exchange trade execution.
type Fill struct {
	OrdID     string
	TradeID   string
	InstID    string
	Side      string
	FillSize  float64
	FillPrice float64
	Fee       float64
	Ts        time.Time
}

// Balance is the account's holding of one currency.
type Balance struct {
	Ccy       string
	Available float64
	Frozen    float64
	Valuation float64
}

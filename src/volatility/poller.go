// Package volatility polls exchange tickers per tracked instrument and
// signals the trigger coordinator's wake channel when price moves beyond
// a basis-point threshold from the last trigger baseline.
package volatility

import (
	"context"
	"math"
	"time"

	logger "github.com/sirupsen/logrus"

	"aitrader/src/registry"
)

// TickerFetcher is the subset of the exchange client the poller needs.
type TickerFetcher interface {
	GetTicker(instID string) (price float64, err error)
}

// Waker is implemented by the trigger coordinator: a coalescing signal
// that only the newest price for an instrument survives.
type Waker interface {
	Wake(instID string, source registry.Source, price *float64)
}

// Poller runs one polling loop per configured instrument.
type Poller struct {
	cfg      Config
	instID   string
	fetcher  TickerFetcher
	registry *registry.Registry
	waker    Waker
}

func NewPoller(cfg Config, instID string, fetcher TickerFetcher, reg *registry.Registry, waker Waker) *Poller {
	return &Poller{cfg: cfg, instID: instID, fetcher: fetcher, registry: reg, waker: waker}
}

// Run blocks polling until ctx is cancelled. It never returns an error;
// transient fetch failures are retried up to MaxAttempts and then logged.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce()
		}
	}
}

func (p *Poller) pollOnce() {
	price, err := p.fetchWithRetry()
	if err != nil {
		logger.WithError(err).WithField("inst_id", p.instID).Warn("volatility poll exhausted retries, keeping last baseline")
		return
	}

	p.registry.SetTickPrice(p.instID, price)

	snap, ok := p.registry.Snapshot(p.instID)
	if !ok || snap.LastTriggerPrice == nil {
		return
	}

	baseline := *snap.LastTriggerPrice
	if baseline == 0 {
		return
	}

	deltaBps := math.Abs(price-baseline) / baseline * 10000
	if deltaBps < p.cfg.ThresholdBps {
		return
	}

	if snap.LastTriggerAt != nil && time.Since(*snap.LastTriggerAt) < p.cfg.Window {
		return
	}

	logger.WithFields(map[string]interface{}{
		"inst_id":    p.instID,
		"price":      price,
		"baseline":   baseline,
		"delta_bps":  deltaBps,
	}).Info("volatility threshold crossed, waking coordinator")

	p.waker.Wake(p.instID, registry.SourceVolatility, &price)
}

func (p *Poller) fetchWithRetry() (float64, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		price, err := p.fetcher.GetTicker(p.instID)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if attempt < p.cfg.MaxAttempts {
			time.Sleep(p.cfg.RetryBackoff)
		}
	}
	return 0, lastErr
}

// Package balance runs the fixed-interval valuation snapshot writer: one
// row per poll, skipped when the change against the previous row for the
// same asset is below both the absolute and the relative threshold.
package balance

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"aitrader/src/model"
	"aitrader/src/repository"
)

// BalanceFetcher is the subset of the exchange client the writer needs.
type BalanceFetcher interface {
	GetBalance(ccy string) (*ExchBalance, error)
}

// ExchBalance mirrors exchange.Balance's shape, kept local to avoid a
// dependency from balance onto the exchange package's wire types.
type ExchBalance struct {
	Ccy       string
	Available float64
	Frozen    float64
	Valuation float64
}

type Writer struct {
	cfg     Config
	fetcher BalanceFetcher
	repo    *repository.BalanceRepository
}

func NewWriter(cfg Config, fetcher BalanceFetcher, repo *repository.BalanceRepository) *Writer {
	return &Writer{cfg: cfg, fetcher: fetcher, repo: repo}
}

func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Writer) pollOnce(ctx context.Context) {
	bal, err := w.fetcher.GetBalance(w.cfg.Ccy)
	if err != nil {
		logger.WithError(err).Warn("balance poll failed, will retry next interval")
		return
	}

	candidate := &model.BalanceSnapshot{
		Asset:      bal.Ccy,
		Available:  bal.Available,
		Locked:     bal.Frozen,
		Valuation:  bal.Valuation,
		Source:     "exchange",
		RecordedAt: time.Now(),
	}

	inserted, err := w.repo.InsertSnapshot(ctx, candidate, w.cfg.MinAbsChange, w.cfg.MinRelChange)
	if err != nil {
		logger.WithError(err).Warn("failed to insert balance snapshot")
		return
	}
	if !inserted {
		logger.WithField("asset", candidate.Asset).Debug("balance snapshot below threshold, skipped")
	}
}

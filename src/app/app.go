// Package app wires every subsystem together: database, exchange client,
// agent channel, symbol registry, trigger coordinator, volatility pollers,
// reconciler and balance writer, all under one cancellation context, plus
// the HTTP surface.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"aitrader/src/agent"
	"aitrader/src/balance"
	"aitrader/src/config"
	"aitrader/src/database"
	"aitrader/src/exchange"
	"aitrader/src/reconciler"
	"aitrader/src/registry"
	"aitrader/src/repository"
	"aitrader/src/security"
	"aitrader/src/server"
	"aitrader/src/trigger"
	"aitrader/src/volatility"
)

// Run builds every component from cfg and blocks until ctx is cancelled,
// then waits for every goroutine to finish shutting down.
func Run(ctx context.Context, cfg config.Root) error {
	if err := database.InitMainDB(); err != nil {
		return err
	}

	initialEquity := repository.NewInitialEquityRepository()
	if err := initialEquity.Seed(ctx, cfg.InitialEquity); err != nil {
		logger.WithError(err).Error("failed to seed initial equity")
	}

	exchangeCfg, err := decryptExchangeSecrets(cfg.Exchange, cfg.Security)
	if err != nil {
		return err
	}

	exchangeClient := exchange.NewClient(exchangeCfg)
	instIDs := exchangeCfg.InstIDs()

	agentChannel := agent.New(cfg.Agent)
	agentChannel.Start(ctx)

	orders := repository.NewOrderRepository()
	trades := repository.NewTradeRepository()
	positions := repository.NewPositionRepository()
	strategies := repository.NewStrategyMessageRepository()
	exceptions := repository.NewExceptionRepository()

	reg := registry.New(instIDs, cfg.Trigger.ScheduleInterval)
	restoreRegistry(ctx, reg, positions, orders, instIDs, cfg.Trigger.ScheduleInterval)

	coordinator := trigger.New(
		cfg.Trigger,
		trigger.VolatilityThreshold{ThresholdBps: cfg.Volatility.ThresholdBps},
		reg,
		&agentRequester{channel: agentChannel},
	)

	rec := reconciler.New(
		cfg.Reconciler,
		orders,
		trades,
		positions,
		strategies,
		exceptions,
		&exchangePositions{client: exchangeClient},
	)

	balanceWriter := balance.NewWriter(cfg.Balance, &balanceFetcher{client: exchangeClient}, repository.NewBalanceRepository())

	var wg sync.WaitGroup

	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer logger.WithField("component", name).Info("component stopped")
			fn()
		}()
	}

	run("trigger-coordinator", func() { coordinator.Run(ctx) })
	run("reconciler-events", func() { rec.ConsumeEvents(ctx, agentChannel.Events()) })
	run("reconciler-sync", func() { rec.RunPeriodicSync(ctx) })
	run("balance-writer", func() { balanceWriter.Run(ctx) })

	if cfg.Volatility.Enabled {
		for _, instID := range instIDs {
			instID := instID
			poller := volatility.NewPoller(cfg.Volatility, instID, &tickerFetcher{client: exchangeClient}, reg, coordinator)
			run("volatility-poller:"+instID, func() { poller.Run(ctx) })
		}
	}

	run("http-server", func() {
		server.StartServer(ctx, cfg.Server.Port, server.Deps{
			Waker:                coordinator,
			ManualTriggerEnabled: cfg.Trigger.ManualEnabled,
			InstIDs:              instIDs,
			StrategyMessages:     strategies,
			Positions:            positions,
		})
	})

	<-ctx.Done()
	logger.Info("shutdown signal received, waiting for components to stop")
	agentChannel.Stop()
	wg.Wait()
	return nil
}

// restoreRegistry seeds each instrument's trigger baseline from the most
// recently updated position row, falling back to the most recent order's
// last_event_at (schedule anchor only, no price) when no position exists
// yet. Instruments with neither keep the fresh-process default set by
// registry.New. Failures are logged and otherwise non-fatal: a cold
// registry is a safe, if redundant, starting point.
func restoreRegistry(ctx context.Context, reg *registry.Registry, positions *repository.PositionRepository, orders *repository.OrderRepository, instIDs []string, scheduleInterval time.Duration) {
	latestPositions, err := positions.LatestByInstID(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to restore trigger baselines from positions, starting cold")
		latestPositions = nil
	}

	latestOrderEvents, err := orders.LatestEventAtByInstID(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to restore schedule anchors from orders, starting cold")
		latestOrderEvents = nil
	}

	for _, instID := range instIDs {
		seed := registry.SeedState{}

		if pos, ok := latestPositions[instID]; ok {
			price := pos.AvgPrice
			if price == nil {
				price = pos.MarkPx
			}
			seed.LastTriggerPrice = price
			updatedAt := pos.UpdatedAt
			seed.LastTriggerAt = &updatedAt
		} else if lastEventAt, ok := latestOrderEvents[instID]; ok {
			seed.LastTriggerAt = &lastEventAt
		}

		reg.Restore(instID, seed, scheduleInterval)
	}
}

// decryptExchangeSecrets unseals OKX_API_SECRET/OKX_PASSPHRASE if they were
// set with the "enc:" prefix produced by security.EncryptString; values
// without the prefix pass through unchanged.
func decryptExchangeSecrets(cfg exchange.Config, secCfg security.Config) (exchange.Config, error) {
	secret, err := security.DecryptString(cfg.APISecret, secCfg)
	if err != nil {
		return cfg, fmt.Errorf("decrypt OKX_API_SECRET: %w", err)
	}
	passphrase, err := security.DecryptString(cfg.Passphrase, secCfg)
	if err != nil {
		return cfg, fmt.Errorf("decrypt OKX_PASSPHRASE: %w", err)
	}
	cfg.APISecret = secret
	cfg.Passphrase = passphrase
	return cfg, nil
}

// Package config composes every subsystem's environment-driven Config
// struct into a single root value loaded once at startup.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"aitrader/src/agent"
	"aitrader/src/balance"
	"aitrader/src/database"
	"aitrader/src/exchange"
	"aitrader/src/reconciler"
	"aitrader/src/security"
	"aitrader/src/server"
	"aitrader/src/trigger"
	"aitrader/src/volatility"
)

type Root struct {
	Database   database.Config
	Security   security.Config
	Exchange   exchange.Config
	Agent      agent.Config
	Server     server.Config
	Trigger    trigger.Config
	Volatility volatility.Config
	Reconciler reconciler.Config
	Balance    balance.Config

	InitialEquity float64
}

type baselineConfig struct {
	InitialEquity float64 `envconfig:"INITIAL_EQUITY" default:"0"`
}

func Load() Root {
	var baseline baselineConfig
	if err := envconfig.Process("", &baseline); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}

	return Root{
		Database:      database.GetConfig(),
		Security:      security.GetConfig(),
		Exchange:      exchange.GetConfig(),
		Agent:         agent.GetConfig(),
		Server:        *server.GetConfig(),
		Trigger:       trigger.GetConfig(),
		Volatility:    volatility.GetConfig(),
		Reconciler:    reconciler.GetConfig(),
		Balance:       balance.GetConfig(),
		InitialEquity: baseline.InitialEquity,
	}
}

package reconciler

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PositionSyncInterval time.Duration `envconfig:"RECONCILER_POSITION_SYNC_INTERVAL" default:"30s"`
	OrderHistoryLimit    int           `envconfig:"RECONCILER_ORDER_HISTORY_LIMIT" default:"100"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

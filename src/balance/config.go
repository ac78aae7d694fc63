package balance

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MinAbsChange float64       `envconfig:"BALANCE_SNAPSHOT_MIN_ABS_CHANGE" default:"1"`
	MinRelChange float64       `envconfig:"BALANCE_SNAPSHOT_MIN_RELATIVE_CHANGE" default:"0.0001"`
	PollInterval time.Duration `envconfig:"BALANCE_SNAPSHOT_POLL_INTERVAL" default:"60s"`
	Ccy          string        `envconfig:"BALANCE_SNAPSHOT_CCY" default:"USDT"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

package volatility

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Enabled     bool          `envconfig:"STRATEGY_VOL_TRIGGER_ENABLED" default:"true"`
	ThresholdBps float64      `envconfig:"STRATEGY_VOL_THRESHOLD_BPS" default:"80"`
	Window      time.Duration `envconfig:"STRATEGY_VOL_WINDOW_SECS" default:"0s"`
	PollInterval time.Duration `envconfig:"STRATEGY_VOL_POLL_INTERVAL" default:"5s"`
	MaxAttempts int           `envconfig:"STRATEGY_VOL_MAX_ATTEMPTS" default:"3"`
	RetryBackoff time.Duration `envconfig:"STRATEGY_VOL_RETRY_BACKOFF" default:"2s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

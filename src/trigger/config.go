package trigger

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ScheduleEnabled  bool          `envconfig:"STRATEGY_SCHEDULE_ENABLED" default:"true"`
	ScheduleInterval time.Duration `envconfig:"STRATEGY_SCHEDULE_INTERVAL_SECS" default:"1h"`
	ManualEnabled    bool          `envconfig:"STRATEGY_MANUAL_TRIGGER_ENABLED" default:"true"`
	// RefreshBaselineOnError controls whether a trigger that ended in
	// analysis_error or a rejected task_result still refreshes
	// last_trigger_price; next_scheduled_at advances either way.
	// Default policy is to always refresh (see trigger coordinator design).
	RefreshBaselineOnError bool          `envconfig:"STRATEGY_REFRESH_BASELINE_ON_ERROR" default:"true"`
	AgentRequestTimeout    time.Duration `envconfig:"STRATEGY_AGENT_REQUEST_TIMEOUT" default:"30s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

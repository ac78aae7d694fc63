package agent

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BaseURL          string        `envconfig:"AGENT_BASE_URL" default:"ws://localhost:8090/agent"`
	HeartbeatInterval time.Duration `envconfig:"AGENT_HEARTBEAT_INTERVAL" default:"20s"`
	HeartbeatTimeout  time.Duration `envconfig:"AGENT_HEARTBEAT_TIMEOUT" default:"45s"`
	RequestTimeout    time.Duration `envconfig:"AGENT_REQUEST_TIMEOUT" default:"30s"`
	ReconnectBaseDelay time.Duration `envconfig:"AGENT_RECONNECT_BASE_DELAY" default:"1s"`
	ReconnectMaxDelay  time.Duration `envconfig:"AGENT_RECONNECT_MAX_DELAY" default:"30s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

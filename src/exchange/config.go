package exchange

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	APIKey        string `envconfig:"OKX_API_KEY" default:""`
	APISecret     string `envconfig:"OKX_API_SECRET" default:""`
	Passphrase    string `envconfig:"OKX_PASSPHRASE" default:""`
	UseSimulated  bool   `envconfig:"OKX_USE_SIMULATED" default:"true"`
	InstIDsRaw    string `envconfig:"OKX_INST_IDS" default:"BTC-USDT-SWAP"`
	BaseURL       string `envconfig:"OKX_BASE_URL" default:"https://www.okx.com"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// InstIDs splits the comma-separated tracked-instrument list.
func (c Config) InstIDs() []string {
	parts := strings.Split(c.InstIDsRaw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

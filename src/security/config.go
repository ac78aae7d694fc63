package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config carries the symmetric key used to unseal credentials that arrive
// through the environment pre-encrypted (see vault.go). The default is an
// obviously-fake placeholder; real deployments must override it.
type Config struct {
	ExchangeCRKey string `envconfig:"EXCHANGE_CREDENTIALS_KEY" default:"00000000000000000000000000000000000000000000000000000000000000"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

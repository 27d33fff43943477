package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// GATEWAY_URL points at a running gateway; the suite is skipped
	// when it is empty.
	GatewayURL string `envconfig:"GATEWAY_URL"`
	WsURL      string `envconfig:"GATEWAY_WS_URL"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	FuturesBaseURL  string        `envconfig:"BINANCE_FUTURES_BASE_URL" default:"https://fapi.binance.com"`
	FuturesWsURL    string        `envconfig:"BINANCE_FUTURES_WS_URL" default:"wss://fstream.binance.com/ws"`
	HTTPTimeout     time.Duration `envconfig:"CONNECTOR_HTTP_TIMEOUT" default:"15s"`
	RetryAttempts   int           `envconfig:"CONNECTOR_RETRY_ATTEMPTS" default:"4"`
	RetryBaseDelay  time.Duration `envconfig:"CONNECTOR_RETRY_BASE_DELAY" default:"500ms"`
	RetryMaxBackoff time.Duration `envconfig:"CONNECTOR_RETRY_MAX_BACKOFF" default:"8s"`
	MarkStaleAfter  time.Duration `envconfig:"MARK_STREAM_STALE_AFTER" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

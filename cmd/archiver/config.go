package archiver

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StartDt  time.Time `envconfig:"ARCHIVE_START_DATE" default:"2024-01-01T00:00:00Z"`
	EndDt    time.Time `envconfig:"ARCHIVE_END_DATE" default:"2027-01-01T00:00:00Z"`
	AutoMode bool      `envconfig:"ARCHIVE_AUTO_MODE" default:"true"`
	Symbol   string    `envconfig:"ARCHIVE_SYMBOL" default:"BTC"`
	Quote    string    `envconfig:"ARCHIVE_QUOTE" default:"USDT"`
	Limit    int       `envconfig:"ARCHIVE_LIMIT" default:"1000"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}

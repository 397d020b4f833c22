package notifier

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Enabled     bool          `envconfig:"TELEGRAM_ENABLED" default:"false"`
	BotToken    string        `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID      string        `envconfig:"TELEGRAM_CHAT_ID"`
	BaseURL     string        `envconfig:"TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	HTTPTimeout time.Duration `envconfig:"TELEGRAM_HTTP_TIMEOUT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

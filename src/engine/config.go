package engine

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	ReplaceBasisUnlevered = "unlevered"
	ReplaceBasisLevered   = "levered"
)

type Config struct {
	InitialEquityUsd float64 `envconfig:"INITIAL_EQUITY_USD" default:"10000"`
	Leverage         float64 `envconfig:"LEVERAGE" default:"3"`

	EntryMarginFraction float64 `envconfig:"ENTRY_MARGIN_FRACTION" default:"0.1"`
	EntryMarginCapUsd   float64 `envconfig:"ENTRY_MARGIN_CAP_USD" default:"500"`
	MinActiveCashUsd    float64 `envconfig:"MIN_ACTIVE_CASH_USD" default:"25"`

	MaxOpenPositions        int     `envconfig:"MAX_OPEN_POSITIONS" default:"10"`
	PreventDuplicateSymbols bool    `envconfig:"PREVENT_DUPLICATE_SYMBOLS" default:"true"`
	ReplaceThresholdPct     float64 `envconfig:"REPLACE_THRESHOLD_PCT" default:"0.2"`
	ReplaceBasis            string  `envconfig:"REPLACE_BASIS" default:"unlevered"`

	TakeProfitPct      float64 `envconfig:"TAKE_PROFIT_PCT" default:"0.05"`
	DeltaExitThreshold float64 `envconfig:"DELTA_EXIT_THRESHOLD" default:"0.1"`
	MaxHoldHours       float64 `envconfig:"MAX_HOLD_HOURS" default:"72"`

	MinHourVolume float64 `envconfig:"MIN_HOUR_VOLUME" default:"1000000"`
	MaxSellRatio  float64 `envconfig:"MAX_SELL_RATIO" default:"0.45"`

	FeesEnabled      bool    `envconfig:"FEES_ENABLED" default:"true"`
	TakerFeeBps      float64 `envconfig:"TAKER_FEE_BPS" default:"5"`
	SlippageEnabled  bool    `envconfig:"SLIPPAGE_ENABLED" default:"true"`
	EntrySlippageBps float64 `envconfig:"ENTRY_SLIPPAGE_BPS" default:"2"`
	ExitSlippageBps  float64 `envconfig:"EXIT_SLIPPAGE_BPS" default:"2"`
	FundingEnabled   bool    `envconfig:"FUNDING_ENABLED" default:"true"`

	ReconcileEnabled bool    `envconfig:"RECONCILE_ENABLED" default:"true"`
	LookbackCapHours float64 `envconfig:"LOOKBACK_CAP_HOURS" default:"48"`

	DetectBatchSize  int           `envconfig:"DETECT_BATCH_SIZE" default:"10"`
	DetectBatchPause time.Duration `envconfig:"DETECT_BATCH_PAUSE" default:"500ms"`

	UniverseRefreshInterval time.Duration `envconfig:"UNIVERSE_REFRESH_INTERVAL" default:"6h"`
	UniverseMaxSymbols      int           `envconfig:"UNIVERSE_MAX_SYMBOLS" default:"50"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

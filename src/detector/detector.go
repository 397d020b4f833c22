package detector

import (
	"context"
	"math"
	"time"

	logger "github.com/sirupsen/logrus"

	"papershort/src/connectors"
	"papershort/src/utils"
)

// Params are the confirmation thresholds for the close-confirm/next-open
// entry rule.
type Params struct {
	MinHourVolume float64
	MaxSellRatio  float64
	RatioLookback int
}

// Detection is a confirmed entry signal: the second-to-last candle confirmed
// the rule and the last candle's open is the prospective fill price.
type Detection struct {
	Symbol        string
	HourStart     time.Time
	HourEnd       time.Time
	SellRatio     float64
	HourVolume    float64
	ClosePrice    float64
	NextOpenPrice float64
}

type Detector struct {
	market connectors.MarketData
	params Params
}

func NewDetector(market connectors.MarketData, params Params) *Detector {
	if params.RatioLookback <= 0 {
		params.RatioLookback = 4
	}
	return &Detector{market: market, params: params}
}

// Detect evaluates the entry rule for one symbol. An unmet condition returns
// (nil, nil): this is a filter, not a fault. Only transport failures surface
// as errors.
func (d *Detector) Detect(ctx context.Context, symbol string) (*Detection, error) {
	candles, err := d.market.GetHourlyCandles(ctx, symbol, 3)
	if err != nil {
		return nil, err
	}
	if len(candles) < 2 {
		return nil, nil
	}

	closed := candles[len(candles)-2]
	last := candles[len(candles)-1]

	// Out-of-order, misaligned or stale feed: refuse to confirm rather
	// than guess.
	if !utils.IsHourAligned(closed.OpenTime) || !closed.OpenTime.Before(last.OpenTime) {
		logger.WithFields(logger.Fields{
			"symbol":     symbol,
			"closedOpen": closed.OpenTime,
			"lastOpen":   last.OpenTime,
		}).Debug("candle ordering guard rejected detection")
		return nil, nil
	}

	if closed.Volume < d.params.MinHourVolume {
		return nil, nil
	}

	hourStart := closed.OpenTime
	hourEnd := hourStart.Add(time.Hour)

	sellRatio, ok, err := d.confirmSellRatio(ctx, symbol, hourStart, hourEnd)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	nextOpen := last.Open
	if nextOpen <= 0 || math.IsNaN(nextOpen) || math.IsInf(nextOpen, 0) {
		return nil, nil
	}

	return &Detection{
		Symbol:        symbol,
		HourStart:     hourStart,
		HourEnd:       hourEnd,
		SellRatio:     sellRatio,
		HourVolume:    closed.Volume,
		ClosePrice:    closed.Close,
		NextOpenPrice: nextOpen,
	}, nil
}

// confirmSellRatio picks the latest sample timestamped inside
// [hourStart-1h, hourEnd] and requires it to be present, finite and at most
// the configured maximum.
func (d *Detector) confirmSellRatio(ctx context.Context, symbol string, hourStart, hourEnd time.Time) (float64, bool, error) {
	samples, err := d.market.GetSellRatio(ctx, symbol, d.params.RatioLookback)
	if err != nil {
		return 0, false, err
	}

	windowStart := hourStart.Add(-time.Hour)

	var latest *connectors.RatioSample
	for i := range samples {
		s := samples[i]
		if s.Ts.Before(windowStart) || s.Ts.After(hourEnd) {
			continue
		}
		if latest == nil || s.Ts.After(latest.Ts) {
			latest = &samples[i]
		}
	}

	if latest == nil || latest.SellRatio == nil {
		return 0, false, nil
	}

	ratio := *latest.SellRatio
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio > d.params.MaxSellRatio {
		return 0, false, nil
	}

	return ratio, true, nil
}

package archiver

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"papershort/src/model"
	"papershort/src/repository"
)

// Archiver backfills hourly candles into the local archive so reconciliation
// replays never depend on the exchange keeping deep kline history around.
type Archiver struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (a *Archiver) Start() error {
	a.Config = GetConfig()

	if a.exchange == nil {
		a.exchange = newBinanceInstance()
	}

	if a.Config.AutoMode {
		if err := a.determineStartPoint(); err != nil {
			return err
		}
	}

	return a.aggregateAndSave()
}

func newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

func (a *Archiver) pairSymbol() string {
	return a.Config.Symbol + a.Config.Quote
}

func (a *Archiver) aggregateAndSave() error {
	klines, err := a.fetchSeries()
	if err != nil {
		return err
	}

	candles := repository.NewCandleRepositoryWithDB(a.DB)
	symbol := a.pairSymbol()

	for i := range klines {
		k := klines[i]

		candle := &model.Candle1h{
			Symbol:   symbol,
			OpenTime: time.Unix(k.Timestamp, 0).UTC(),
			Open:     decimal.NewFromFloat(k.Open),
			High:     decimal.NewFromFloat(k.High),
			Low:      decimal.NewFromFloat(k.Low),
			Close:    decimal.NewFromFloat(k.Close),
			Volume:   decimal.NewFromFloat(k.Vol),
		}

		if err := candles.Upsert(context.Background(), candle); err != nil {
			return err
		}
	}

	a.Log.WithFields(logger.Fields{
		"symbol": symbol,
		"count":  len(klines),
	}).Info("hourly candles archived")

	return nil
}

// determineStartPoint resumes from the newest archived candle instead of the
// configured start date, so repeat runs only fetch the gap.
func (a *Archiver) determineStartPoint() error {
	a.Config.StartDt = a.Config.StartDt.Add(-time.Hour)
	a.Config.EndDt = time.Now()

	var latestTime *sql.NullTime
	result := a.DB.Model(&model.Candle1h{}).
		Select("MAX(open_time)").
		Where("symbol = ?", a.pairSymbol()).
		Take(&latestTime)

	a.Log.
		WithField("latestTime", latestTime).
		Info("determineStartPoint")

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			a.Log.
				WithField("StartDt", a.Config.StartDt.String()).
				Info("no archived candles, starting from the configured date")
			return nil
		}
		a.Log.WithError(result.Error).Error("determineStartPoint query failed")
		return result.Error
	}

	if latestTime != nil && latestTime.Valid {
		a.Config.StartDt = latestTime.Time.Add(-time.Hour)
	}

	return nil
}

func (a *Archiver) fetchSeries() ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(goex.Currency{Symbol: a.Config.Symbol}, goex.Currency{Symbol: a.Config.Quote})

	const millis = 1000
	klines, err := a.exchange.GetKlineRecords(
		targetSymbol,
		goex.KLINE_PERIOD_1H,
		a.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", a.Config.StartDt.Unix()*millis).
			Optional("endTime", a.Config.EndDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}

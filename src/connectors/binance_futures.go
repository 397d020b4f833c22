package connectors

// REST client for Binance USDT-M futures market data.
// Resty only, transport-level retry on 429/5xx.

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const klineInterval1h = "1h"

// SymbolInfo is one tradable contract from the exchange listing.
type SymbolInfo struct {
	Symbol       string
	Status       string
	ContractType string
}

// Candle is an hourly OHLCV bar, open-time ascending when returned in a slice.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// RatioSample is one taker sell-ratio observation. SellRatio is nil when the
// exchange reports no taker volume for the window.
type RatioSample struct {
	Ts        time.Time
	SellRatio *float64
}

// Ticker is a live mark price snapshot.
type Ticker struct {
	MarkPrice float64
}

// FundingRate is one historical funding settlement.
type FundingRate struct {
	Ts   time.Time
	Rate float64
}

// MarketData is the market-data surface the engine and detector consume.
type MarketData interface {
	GetSymbols(ctx context.Context) ([]SymbolInfo, error)
	GetHourlyCandles(ctx context.Context, symbol string, limit int) ([]Candle, error)
	GetSellRatio(ctx context.Context, symbol string, limit int) ([]RatioSample, error)
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetFundingHistory(ctx context.Context, symbol string, start, end time.Time) ([]FundingRate, error)
}

type BinanceFuturesClient struct {
	baseURL string
	http    *resty.Client
	marks   *MarkStream // optional fast path for GetTicker
}

func NewBinanceFuturesClient(cfg Config) *BinanceFuturesClient {
	baseURL := strings.TrimRight(cfg.FuturesBaseURL, "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.HTTPTimeout).
		SetRetryCount(cfg.RetryAttempts - 1).
		SetRetryWaitTime(cfg.RetryBaseDelay).
		SetRetryMaxWaitTime(cfg.RetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &BinanceFuturesClient{
		baseURL: baseURL,
		http:    httpClient,
	}
}

// WithMarkStream attaches a websocket mark-price cache consulted before the
// REST fallback in GetTicker.
func (c *BinanceFuturesClient) WithMarkStream(s *MarkStream) *BinanceFuturesClient {
	c.marks = s
	return c
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return r.StatusCode() == 429 || r.StatusCode() >= 500
}

func (c *BinanceFuturesClient) doGet(ctx context.Context, endpoint string, params url.Values, out any) error {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json")

	if len(params) > 0 {
		req = req.SetQueryString(params.Encode())
	}

	resp, err := req.Get(endpoint)
	if err != nil {
		return err
	}

	raw := resp.Body()
	if resp.StatusCode() != 200 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("json unmarshal failed: %w. raw=%s", err, string(raw))
	}

	return nil
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol       string `json:"symbol"`
		Status       string `json:"status"`
		ContractType string `json:"contractType"`
	} `json:"symbols"`
}

// GetSymbols lists the exchange contracts. Filtering to tradable perpetuals
// is left to the caller so the universe policy stays in one place.
func (c *BinanceFuturesClient) GetSymbols(ctx context.Context) ([]SymbolInfo, error) {
	var out exchangeInfoResponse
	if err := c.doGet(ctx, "/fapi/v1/exchangeInfo", nil, &out); err != nil {
		return nil, err
	}

	symbols := make([]SymbolInfo, 0, len(out.Symbols))
	for _, s := range out.Symbols {
		symbols = append(symbols, SymbolInfo{
			Symbol:       s.Symbol,
			Status:       s.Status,
			ContractType: s.ContractType,
		})
	}
	return symbols, nil
}

// GetHourlyCandles fetches the most recent hourly klines, ascending by open
// time, which is how Binance returns them.
func (c *BinanceFuturesClient) GetHourlyCandles(ctx context.Context, symbol string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 3
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", klineInterval1h)
	params.Set("limit", strconv.Itoa(limit))

	// Klines come back as positional arrays of mixed numbers and strings.
	var rows [][]json.RawMessage
	if err := c.doGet(ctx, "/fapi/v1/klines", params, &rows); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}

		var openTimeMs int64
		if err := json.Unmarshal(row[0], &openTimeMs); err != nil {
			return nil, fmt.Errorf("kline open time parse failed: %w", err)
		}

		fields := make([]float64, 5)
		for i := 1; i <= 5; i++ {
			v, err := parseStringFloat(row[i])
			if err != nil {
				return nil, fmt.Errorf("kline field %d parse failed: %w", i, err)
			}
			fields[i-1] = v
		}

		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(openTimeMs).UTC(),
			Open:     fields[0],
			High:     fields[1],
			Low:      fields[2],
			Close:    fields[3],
			Volume:   fields[4],
		})
	}

	return candles, nil
}

type takerRatioRow struct {
	BuyVol    string `json:"buyVol"`
	SellVol   string `json:"sellVol"`
	Timestamp int64  `json:"timestamp"`
}

// GetSellRatio fetches hourly taker volume samples and reduces each to
// sellVol / (buyVol + sellVol), ascending by timestamp. A window with no
// taker volume yields a nil ratio rather than a fabricated number.
func (c *BinanceFuturesClient) GetSellRatio(ctx context.Context, symbol string, limit int) ([]RatioSample, error) {
	if limit <= 0 {
		limit = 2
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("period", klineInterval1h)
	params.Set("limit", strconv.Itoa(limit))

	var rows []takerRatioRow
	if err := c.doGet(ctx, "/futures/data/takerlongshortRatio", params, &rows); err != nil {
		return nil, err
	}

	samples := make([]RatioSample, 0, len(rows))
	for _, row := range rows {
		sample := RatioSample{Ts: time.UnixMilli(row.Timestamp).UTC()}

		buy, errB := strconv.ParseFloat(row.BuyVol, 64)
		sell, errS := strconv.ParseFloat(row.SellVol, 64)
		if errB == nil && errS == nil {
			total := buy + sell
			if total > 0 && !math.IsNaN(total) && !math.IsInf(total, 0) {
				ratio := sell / total
				sample.SellRatio = &ratio
			}
		}

		samples = append(samples, sample)
	}

	return samples, nil
}

type premiumIndexResponse struct {
	Symbol    string `json:"symbol"`
	MarkPrice string `json:"markPrice"`
}

// GetTicker returns the current mark price, preferring the websocket cache
// when it holds a fresh sample. Returns (nil, nil) when the exchange has no
// usable price.
func (c *BinanceFuturesClient) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	if c.marks != nil {
		if price, ok := c.marks.Mark(symbol); ok {
			return &Ticker{MarkPrice: price}, nil
		}
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	var out premiumIndexResponse
	if err := c.doGet(ctx, "/fapi/v1/premiumIndex", params, &out); err != nil {
		return nil, err
	}

	price, err := strconv.ParseFloat(out.MarkPrice, 64)
	if err != nil || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		logger.WithFields(logger.Fields{
			"symbol":    symbol,
			"markPrice": out.MarkPrice,
		}).Warn("ticker returned no usable mark price")
		return nil, nil
	}

	return &Ticker{MarkPrice: price}, nil
}

type fundingRateRow struct {
	FundingRate string `json:"fundingRate"`
	FundingTime int64  `json:"fundingTime"`
}

// GetFundingHistory fetches funding settlements inside [start, end].
func (c *BinanceFuturesClient) GetFundingHistory(ctx context.Context, symbol string, start, end time.Time) ([]FundingRate, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	params.Set("limit", "1000")

	var rows []fundingRateRow
	if err := c.doGet(ctx, "/fapi/v1/fundingRate", params, &rows); err != nil {
		return nil, err
	}

	rates := make([]FundingRate, 0, len(rows))
	for _, row := range rows {
		rate, err := strconv.ParseFloat(row.FundingRate, 64)
		if err != nil {
			continue
		}
		rates = append(rates, FundingRate{
			Ts:   time.UnixMilli(row.FundingTime).UTC(),
			Rate: rate,
		})
	}

	return rates, nil
}

func parseStringFloat(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

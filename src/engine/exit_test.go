package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papershort/src/connectors"
	"papershort/src/model"
)

func ratioPtr(v float64) *float64 { return &v }

func latestTrade(t *testing.T, h *testHarness) *model.Trade {
	t.Helper()
	trades, err := h.repos.Trades.FindLatest(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	return &trades[0]
}

func TestLiveLiquidation(t *testing.T) {
	h := newHarness(t, testConfig())

	// 5x short entered at 100 liquidates at -20% unlevered, price 120.
	pos := h.openPosition(t, model.Position{Symbol: "BTCUSDT", EntryPrice: 100, Leverage: 5, MarginUsd: 300, NotionalUsd: 1500, Quantity: 15, TakeProfitPct: 0.05, MaxHoldHours: 72})
	h.market.tickers["BTCUSDT"] = &connectors.Ticker{MarkPrice: 121}

	require.NoError(t, h.engine.evaluateLive(context.Background(), h.log, pos, testNow))

	trade := latestTrade(t, h)
	assert.Equal(t, model.ExitReasonLiquidation, trade.ExitReason)
	assert.InDelta(t, -21, trade.UnleveredPct, 1e-9)
	// Loss is capped at the posted margin.
	assert.InDelta(t, -300, trade.GrossPnlUsd, 1e-9)
	assert.InDelta(t, -300, trade.NetPnlUsd, 1e-9)
}

func TestLiveTakeProfit(t *testing.T) {
	h := newHarness(t, testConfig())

	pos := h.openPosition(t, model.Position{Symbol: "BTCUSDT", EntryPrice: 100, Leverage: 5, MarginUsd: 300, NotionalUsd: 1500, Quantity: 15, TakeProfitPct: 0.05, MaxHoldHours: 72})
	h.market.tickers["BTCUSDT"] = &connectors.Ticker{MarkPrice: 94}

	require.NoError(t, h.engine.evaluateLive(context.Background(), h.log, pos, testNow))

	trade := latestTrade(t, h)
	assert.Equal(t, model.ExitReasonTakeProfit, trade.ExitReason)
	assert.InDelta(t, 6, trade.UnleveredPct, 1e-9)
	assert.InDelta(t, 30, trade.LeveredPct, 1e-9)
	// margin 300 x5 at +6% unlevered = +90 USD
	assert.InDelta(t, 90, trade.GrossPnlUsd, 1e-9)
}

func TestLiveDeltaExit(t *testing.T) {
	h := newHarness(t, testConfig())

	pos := h.openPosition(t, model.Position{Symbol: "BTCUSDT", EntryPrice: 100, EntrySellRatio: 0.38, Leverage: 5, MarginUsd: 300, NotionalUsd: 1500, Quantity: 15, TakeProfitPct: 0.05, DeltaExitThreshold: 0.1, MaxHoldHours: 72})
	h.market.tickers["BTCUSDT"] = &connectors.Ticker{MarkPrice: 99}
	h.market.ratios["BTCUSDT"] = []connectors.RatioSample{
		{Ts: testNow.Add(-2 * time.Hour), SellRatio: ratioPtr(0.40)},
		{Ts: testNow.Add(-time.Hour), SellRatio: ratioPtr(0.49)},
	}

	require.NoError(t, h.engine.evaluateLive(context.Background(), h.log, pos, testNow))

	trade := latestTrade(t, h)
	assert.Equal(t, model.ExitReasonDeltaExit, trade.ExitReason)
	assert.InDelta(t, 99, trade.ExitPrice, 1e-9)
}

func TestRatioFetchFailureSkipsDeltaCheckOnly(t *testing.T) {
	h := newHarness(t, testConfig())

	// Past the hold deadline: the time exit must still fire even though the
	// ratio endpoint is down.
	pos := h.openPosition(t, model.Position{Symbol: "BTCUSDT", EntryAt: testNow.Add(-80 * time.Hour), EntryPrice: 100, EntrySellRatio: 0.38, Leverage: 5, MarginUsd: 300, NotionalUsd: 1500, Quantity: 15, TakeProfitPct: 0.05, DeltaExitThreshold: 0.1, MaxHoldHours: 72})
	h.market.tickers["BTCUSDT"] = &connectors.Ticker{MarkPrice: 99}
	h.market.ratiosErr = assert.AnError

	require.NoError(t, h.engine.evaluateLive(context.Background(), h.log, pos, testNow))

	trade := latestTrade(t, h)
	assert.Equal(t, model.ExitReasonTimeExit, trade.ExitReason)
}

func TestLiveTimeExit(t *testing.T) {
	h := newHarness(t, testConfig())

	pos := h.openPosition(t, model.Position{Symbol: "BTCUSDT", EntryAt: testNow.Add(-73 * time.Hour), EntryPrice: 100, Leverage: 5, MarginUsd: 300, NotionalUsd: 1500, Quantity: 15, TakeProfitPct: 0.05, MaxHoldHours: 72})
	h.market.tickers["BTCUSDT"] = &connectors.Ticker{MarkPrice: 98}

	require.NoError(t, h.engine.evaluateLive(context.Background(), h.log, pos, testNow))

	trade := latestTrade(t, h)
	assert.Equal(t, model.ExitReasonTimeExit, trade.ExitReason)
	assert.InDelta(t, 2, trade.UnleveredPct, 1e-9)
}

func TestMissingTickerSkipsPosition(t *testing.T) {
	h := newHarness(t, testConfig())

	pos := h.openPosition(t, model.Position{Symbol: "BTCUSDT", EntryPrice: 100, Leverage: 5, MarginUsd: 300, NotionalUsd: 1500, Quantity: 15, TakeProfitPct: 0.05, MaxHoldHours: 72})

	require.NoError(t, h.engine.evaluateLive(context.Background(), h.log, pos, testNow))

	still, err := h.repos.Positions.FindOpenBySymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Nil(t, still.MarkPrice)
}

func TestMarkPersistedWhenNoExitFires(t *testing.T) {
	h := newHarness(t, testConfig())

	pos := h.openPosition(t, model.Position{Symbol: "BTCUSDT", EntryPrice: 100, Leverage: 5, MarginUsd: 300, NotionalUsd: 1500, Quantity: 15, TakeProfitPct: 0.05, MaxHoldHours: 72})
	h.market.tickers["BTCUSDT"] = &connectors.Ticker{MarkPrice: 99}

	require.NoError(t, h.engine.evaluateLive(context.Background(), h.log, pos, testNow))

	still, err := h.repos.Positions.FindOpenBySymbol(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, still)
	require.NotNil(t, still.MarkPrice)
	assert.InDelta(t, 99, *still.MarkPrice, 1e-9)
	require.NotNil(t, still.MarkUnleveredPct)
	assert.InDelta(t, 1, *still.MarkUnleveredPct, 1e-9)
	require.NotNil(t, still.MarkLeveredPct)
	assert.InDelta(t, 5, *still.MarkLeveredPct, 1e-9)
	require.NotNil(t, still.UnrealizedPnlUsd)
	assert.InDelta(t, 15, *still.UnrealizedPnlUsd, 1e-9)
}

func TestFundingDisabledYieldsZero(t *testing.T) {
	cfg := testConfig()
	cfg.FundingEnabled = false
	h := newHarness(t, cfg)

	pos := h.openPosition(t, model.Position{Symbol: "BTCUSDT", EntryAt: testNow.Add(-8 * time.Hour), EntryPrice: 100, Leverage: 5, MarginUsd: 300, NotionalUsd: 1500, Quantity: 15, TakeProfitPct: 0.05, MaxHoldHours: 72})
	h.market.tickers["BTCUSDT"] = &connectors.Ticker{MarkPrice: 94}
	h.market.funding["BTCUSDT"] = []connectors.FundingRate{
		{Ts: testNow.Add(-6 * time.Hour), Rate: 0.0001},
	}

	require.NoError(t, h.engine.evaluateLive(context.Background(), h.log, pos, testNow))

	trade := latestTrade(t, h)
	assert.Zero(t, trade.FundingUsd)
}

func TestFundingAccruesForShorts(t *testing.T) {
	cfg := testConfig()
	cfg.FundingEnabled = true
	h := newHarness(t, cfg)

	pos := h.openPosition(t, model.Position{Symbol: "BTCUSDT", EntryAt: testNow.Add(-16 * time.Hour), EntryPrice: 100, Leverage: 5, MarginUsd: 300, NotionalUsd: 1500, Quantity: 15, TakeProfitPct: 0.05, MaxHoldHours: 72})
	h.market.tickers["BTCUSDT"] = &connectors.Ticker{MarkPrice: 94}
	h.market.funding["BTCUSDT"] = []connectors.FundingRate{
		{Ts: testNow.Add(-12 * time.Hour), Rate: 0.0001},
		{Ts: testNow.Add(-4 * time.Hour), Rate: -0.00005},
	}

	require.NoError(t, h.engine.evaluateLive(context.Background(), h.log, pos, testNow))

	trade := latestTrade(t, h)
	// (0.0001 - 0.00005) * 1500 notional
	assert.InDelta(t, 0.075, trade.FundingUsd, 1e-9)
	assert.InDelta(t, 90+0.075, trade.NetPnlUsd, 1e-9)
}

func TestRoundTripCostsReduceNet(t *testing.T) {
	cfg := testConfig()
	cfg.FeesEnabled = true
	cfg.TakerFeeBps = 5
	cfg.SlippageEnabled = true
	cfg.EntrySlippageBps = 2
	cfg.ExitSlippageBps = 2
	h := newHarness(t, cfg)

	pos := h.openPosition(t, model.Position{Symbol: "BTCUSDT", EntryPrice: 100, Leverage: 5, MarginUsd: 300, NotionalUsd: 1500, Quantity: 15, TakeProfitPct: 0.05, MaxHoldHours: 72})
	h.market.tickers["BTCUSDT"] = &connectors.Ticker{MarkPrice: 94}

	require.NoError(t, h.engine.evaluateLive(context.Background(), h.log, pos, testNow))

	trade := latestTrade(t, h)
	// fees: 1500 * 5bps * 2 sides = 1.50; slippage: 1500 * 4bps = 0.60
	assert.InDelta(t, 1.5, trade.FeesUsd, 1e-9)
	assert.InDelta(t, 0.6, trade.SlippageUsd, 1e-9)
	assert.InDelta(t, 90-2.1, trade.NetPnlUsd, 1e-9)
}

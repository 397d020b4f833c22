package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"papershort/src/connectors"
	"papershort/src/database"
	"papershort/src/engine"
	"papershort/src/model"
	"papershort/src/notifier"
	"papershort/src/repository"
)

type stubMarket struct{}

func (stubMarket) GetSymbols(ctx context.Context) ([]connectors.SymbolInfo, error) {
	return nil, nil
}
func (stubMarket) GetHourlyCandles(ctx context.Context, symbol string, limit int) ([]connectors.Candle, error) {
	return nil, nil
}
func (stubMarket) GetSellRatio(ctx context.Context, symbol string, limit int) ([]connectors.RatioSample, error) {
	return nil, nil
}
func (stubMarket) GetTicker(ctx context.Context, symbol string) (*connectors.Ticker, error) {
	return nil, nil
}
func (stubMarket) GetFundingHistory(ctx context.Context, symbol string, start, end time.Time) ([]connectors.FundingRate, error) {
	return nil, nil
}

type stubNotifier struct{}

func (stubNotifier) NotifyEntry(ctx context.Context, position *model.Position, replaced *notifier.Replacement) {
}
func (stubNotifier) NotifyExit(ctx context.Context, position *model.Position, trade *model.Trade) {}
func (stubNotifier) NotifyScanSkipped(ctx context.Context, trigger, reason string)                {}

func newTestDeps(t *testing.T) (Deps, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	repos := engine.Repositories{
		Signals:   repository.NewSignalRepositoryWithDB(db),
		Positions: repository.NewPositionRepositoryWithDB(db),
		Trades:    repository.NewTradeRepositoryWithDB(db),
		State:     repository.NewRuntimeStateRepositoryWithDB(db),
		Summary:   repository.NewSummaryRepositoryWithDB(db),
	}
	eng := engine.New(engine.Config{InitialEquityUsd: 10000}, stubMarket{}, stubNotifier{}, repos)

	return Deps{
		Engine:    eng,
		Equity:    10000,
		Signals:   repos.Signals,
		Trades:    repos.Trades,
		Alerts:    repository.NewAlertRepositoryWithDB(db),
		Positions: repos.Positions,
		Summary:   repos.Summary,
	}, db
}

func newTestServer(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()

	deps, db := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return srv, db
}

func TestHealthcheck(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthcheck")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestManualScanExecutes(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/scan", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result engine.CycleResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Executed)
}

func TestManualScanSurvivesClientDisconnect(t *testing.T) {
	deps, db := newTestDeps(t)
	router := NewRouter(deps)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/scan", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.CycleResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Executed)

	// The cycle committed its high-water mark despite the dead request context.
	state := repository.NewRuntimeStateRepositoryWithDB(db)
	mark, err := state.GetTime(context.Background(), model.StateKeyLastScanAt)
	require.NoError(t, err)
	assert.NotNil(t, mark)
}

func TestSummaryReflectsStoredState(t *testing.T) {
	srv, db := newTestServer(t)

	positions := repository.NewPositionRepositoryWithDB(db)
	require.NoError(t, positions.Open(context.Background(), &model.Position{
		Symbol: "BTCUSDT", Status: model.PositionStatusOpen, EntryAt: time.Now().UTC(),
		EntryPrice: 100, Leverage: 5, MarginUsd: 400, NotionalUsd: 2000, Quantity: 20,
	}))

	resp, err := http.Get(srv.URL + "/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary repository.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.EqualValues(t, 1, summary.OpenPositions)
	assert.InDelta(t, 400, summary.MarginInUseUsd, 1e-9)
	assert.InDelta(t, 9600, summary.CashUsd, 1e-9)
}

func TestPositionsListsOnlyOpen(t *testing.T) {
	srv, db := newTestServer(t)

	positions := repository.NewPositionRepositoryWithDB(db)
	open := &model.Position{Symbol: "ETHUSDT", Status: model.PositionStatusOpen, EntryAt: time.Now().UTC(), EntryPrice: 3000, Leverage: 5, MarginUsd: 200, NotionalUsd: 1000}
	require.NoError(t, positions.Open(context.Background(), open))

	closedAt := time.Now().UTC()
	price := 95.0
	reason := model.ExitReasonTakeProfit
	closed := &model.Position{Symbol: "SOLUSDT", Status: model.PositionStatusOpen, EntryAt: closedAt.Add(-time.Hour), EntryPrice: 100, Leverage: 5, MarginUsd: 100, NotionalUsd: 500}
	require.NoError(t, positions.Open(context.Background(), closed))
	closed.ExitAt = &closedAt
	closed.ExitPrice = &price
	closed.ExitReason = &reason
	require.NoError(t, positions.Close(context.Background(), closed))

	resp, err := http.Get(srv.URL + "/positions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []model.Position
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "ETHUSDT", got[0].Symbol)
}

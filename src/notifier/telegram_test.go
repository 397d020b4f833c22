package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"papershort/src/database"
	"papershort/src/model"
	"papershort/src/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}

	return db
}

func TestNotifyEntryRecordsAlertAndSends(t *testing.T) {
	var gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotText = r.FormValue("text")
		assert.Equal(t, "42", r.FormValue("chat_id"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":777}}`))
	}))
	defer srv.Close()

	db := newTestDB(t)
	alerts := repository.NewAlertRepositoryWithDB(db)

	cfg := Config{Enabled: true, BotToken: "tok", ChatID: "42", BaseURL: srv.URL, HTTPTimeout: 5 * time.Second}
	n := NewTelegramNotifier(cfg, alerts)

	pos := &model.Position{ID: 9, Symbol: "BTCUSDT", EntryPrice: 43000, MarginUsd: 300, Leverage: 5, NotionalUsd: 1500, EntrySellRatio: 0.61, TakeProfitPct: 0.05, DeltaExitThreshold: 0.1}
	n.NotifyEntry(context.Background(), pos, &Replacement{Symbol: "ETHUSDT", LatestReturnPct: -22.5})

	assert.Contains(t, gotText, "SHORT BTCUSDT")
	assert.Contains(t, gotText, "replaced ETHUSDT")

	stored, err := alerts.FindLatest(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.AlertKindReplacement, stored[0].Kind)
	require.NotNil(t, stored[0].MessageID)
	assert.Equal(t, int64(777), *stored[0].MessageID)
	require.NotNil(t, stored[0].PositionID)
	assert.Equal(t, uint(9), *stored[0].PositionID)
}

func TestNotifyExitDisabledStillAudits(t *testing.T) {
	db := newTestDB(t)
	alerts := repository.NewAlertRepositoryWithDB(db)

	n := NewTelegramNotifier(Config{Enabled: false}, alerts)

	pos := &model.Position{ID: 3, Symbol: "SOLUSDT"}
	trade := &model.Trade{
		Symbol:     "SOLUSDT",
		ExitReason: model.ExitReasonTakeProfit,
		EntryAt:    time.Now().Add(-2 * time.Hour),
		ExitAt:     time.Now(),
		ExitPrice:  95,
		NetPnlUsd:  12.5,
	}
	n.NotifyExit(context.Background(), pos, trade)

	stored, err := alerts.FindLatest(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.AlertKindExit, stored[0].Kind)
	assert.Nil(t, stored[0].MessageID)
}

func TestSendFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	db := newTestDB(t)
	alerts := repository.NewAlertRepositoryWithDB(db)

	cfg := Config{Enabled: true, BotToken: "tok", ChatID: "42", BaseURL: srv.URL, HTTPTimeout: 5 * time.Second}
	n := NewTelegramNotifier(cfg, alerts)

	n.NotifyScanSkipped(context.Background(), "manual", "cycle already in progress")

	stored, err := alerts.FindLatest(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Nil(t, stored[0].MessageID)
	assert.Contains(t, stored[0].Text, "cycle already in progress")
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papershort/src/model"
)

func TestPositionFindOpenOrdersByID(t *testing.T) {
	db := newSQLiteDB(t)
	positions := NewPositionRepositoryWithDB(db)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, symbol := range []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"} {
		require.NoError(t, positions.Open(ctx, &model.Position{
			Symbol: symbol, Status: model.PositionStatusOpen, EntryAt: now,
			EntryPrice: 100, Leverage: 5, MarginUsd: 100, NotionalUsd: 500,
		}))
	}

	open, err := positions.FindOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, "BTCUSDT", open[0].Symbol)
	assert.Equal(t, "SOLUSDT", open[2].Symbol)
}

func TestPositionCloseIsTerminal(t *testing.T) {
	db := newSQLiteDB(t)
	positions := NewPositionRepositoryWithDB(db)
	ctx := context.Background()
	now := time.Now().UTC()

	pos := &model.Position{
		Symbol: "BTCUSDT", Status: model.PositionStatusOpen, EntryAt: now.Add(-2 * time.Hour),
		EntryPrice: 100, Leverage: 5, MarginUsd: 300, NotionalUsd: 1500, Quantity: 15,
	}
	require.NoError(t, positions.Open(ctx, pos))

	exitPrice := 94.0
	reason := model.ExitReasonTakeProfit
	unlevered := 6.0
	net := 90.0
	pos.ExitAt = &now
	pos.ExitPrice = &exitPrice
	pos.ExitReason = &reason
	pos.RealizedUnleveredPct = &unlevered
	pos.NetPnlUsd = &net
	require.NoError(t, positions.Close(ctx, pos))

	stillOpen, err := positions.FindOpenBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, stillOpen)

	count, err := positions.CountOpen(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	var stored model.Position
	require.NoError(t, db.First(&stored, pos.ID).Error)
	assert.Equal(t, model.PositionStatusClosed, stored.Status)
	require.NotNil(t, stored.ExitReason)
	assert.Equal(t, model.ExitReasonTakeProfit, *stored.ExitReason)
	require.NotNil(t, stored.NetPnlUsd)
	assert.InDelta(t, 90, *stored.NetPnlUsd, 1e-9)
}

func TestPositionUpdateMarkPersistsNullableFields(t *testing.T) {
	db := newSQLiteDB(t)
	positions := NewPositionRepositoryWithDB(db)
	ctx := context.Background()
	now := time.Now().UTC()

	pos := &model.Position{
		Symbol: "BTCUSDT", Status: model.PositionStatusOpen, EntryAt: now.Add(-time.Hour),
		EntryPrice: 100, Leverage: 5, MarginUsd: 300, NotionalUsd: 1500,
	}
	require.NoError(t, positions.Open(ctx, pos))

	mark := 98.0
	unlevered := 2.0
	levered := 10.0
	unrealized := 30.0
	funding := 0.0
	pos.MarkPrice = &mark
	pos.MarkAt = &now
	pos.MarkUnleveredPct = &unlevered
	pos.MarkLeveredPct = &levered
	pos.UnrealizedPnlUsd = &unrealized
	pos.FundingUsd = &funding
	require.NoError(t, positions.UpdateMark(ctx, pos))

	stored, err := positions.FindOpenBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.MarkPrice)
	assert.InDelta(t, 98, *stored.MarkPrice, 1e-9)
	require.NotNil(t, stored.MarkLeveredPct)
	assert.InDelta(t, 10, *stored.MarkLeveredPct, 1e-9)
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papershort/src/model"
)

func TestRuntimeStateSetIsUpsert(t *testing.T) {
	db := newSQLiteDB(t)
	state := NewRuntimeStateRepositoryWithDB(db)
	ctx := context.Background()

	require.NoError(t, state.Set(ctx, model.StateKeyLastScanAt, "first"))
	require.NoError(t, state.Set(ctx, model.StateKeyLastScanAt, "second"))

	got, err := state.Get(ctx, model.StateKeyLastScanAt)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", *got)
}

func TestRuntimeStateTimeRoundTrip(t *testing.T) {
	db := newSQLiteDB(t)
	state := NewRuntimeStateRepositoryWithDB(db)
	ctx := context.Background()

	at := time.Date(2024, 5, 10, 12, 0, 0, 123456789, time.UTC)
	require.NoError(t, state.SetTime(ctx, model.StateKeyLastScanAt, at))

	got, err := state.GetTime(ctx, model.StateKeyLastScanAt)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(at))
}

func TestRuntimeStateMissingKeyIsNil(t *testing.T) {
	db := newSQLiteDB(t)
	state := NewRuntimeStateRepositoryWithDB(db)

	got, err := state.GetTime(context.Background(), model.StateKeyLastScanAt)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRuntimeStateUnparseableTimeIsNil(t *testing.T) {
	db := newSQLiteDB(t)
	state := NewRuntimeStateRepositoryWithDB(db)
	ctx := context.Background()

	require.NoError(t, state.Set(ctx, model.StateKeyLastScanAt, "not-a-timestamp"))

	got, err := state.GetTime(ctx, model.StateKeyLastScanAt)
	require.NoError(t, err)
	assert.Nil(t, got)
}

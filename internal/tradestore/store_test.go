package tradestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jasdaq.com/internal/engine"
	"jasdaq.com/internal/matching"
	"jasdaq.com/pkg/orm"
)

var now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := orm.Open(&orm.Config{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "trades.db"),
		MaxOpen:  1,
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	s := New(db)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Migrate())
	return s
}

func row(sym string, price, vol int64, ago time.Duration) Trade {
	return Trade{
		Symbol: sym, BuyOrderID: 1, SellOrderID: 2,
		Price: decimal.NewFromInt(price), Volume: vol, OrderType: "BUY",
		Timestamp: now.Add(-ago),
	}
}

func TestStore_HandleSavesTradesOnly(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Handle(ctx, engine.Event{Type: engine.EvAccepted, Symbol: "TSLA"}))
	require.NoError(t, s.Handle(ctx, engine.Event{
		Type: engine.EvTrade, Symbol: "TSLA", Seq: 9, Side: matching.Sell,
		BuyOrderID: 3, SellOrderID: 4, Price: 250, Qty: 7, Ts: now.UnixNano(),
	}))

	got, err := s.LastTrades(ctx, "TSLA", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "TSLA", got[0].Symbol)
	assert.Equal(t, uint64(9), got[0].Seq)
	assert.Equal(t, uint64(3), got[0].BuyOrderID)
	assert.Equal(t, uint64(4), got[0].SellOrderID)
	assert.True(t, decimal.NewFromInt(250).Equal(got[0].Price))
	assert.Equal(t, int64(7), got[0].Volume)
	assert.Equal(t, "SELL", got[0].OrderType)
	assert.True(t, now.Equal(got[0].Timestamp))
}

func TestStore_LastTradesNewestFirst(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTrades(ctx, []Trade{
		row("AAPL", 10, 1, 3*time.Minute),
		row("AAPL", 11, 1, 2*time.Minute),
		row("AAPL", 12, 1, 1*time.Minute),
		row("MSFT", 99, 1, 0),
	}, 2))

	got, err := s.LastTrades(ctx, "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, decimal.NewFromInt(12).Equal(got[0].Price))
	assert.True(t, decimal.NewFromInt(11).Equal(got[1].Price))

	_, err = s.LastTrades(ctx, "AAPL", 0)
	assert.ErrorIs(t, err, ErrBadArgument)

	page, err := s.ListTrades(ctx, "AAPL", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.True(t, decimal.NewFromInt(10).Equal(page[0].Price))
}

func TestStore_WindowAggregates(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTrades(ctx, []Trade{
		row("GOOG", 100, 5, 10*time.Minute),
		row("GOOG", 103, 5, 5*time.Minute),
		row("GOOG", 500, 5, 2*time.Hour), // 窗口外
		row("META", 7, 1, time.Minute),
	}, 0))

	avg, err := s.AveragePrice(ctx, "GOOG", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "101.5", avg.String())

	n, err := s.CountTrades(ctx, "GOOG", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mm, err := s.MinMaxPrice(ctx, "GOOG", time.Hour)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(mm.Min))
	assert.True(t, decimal.NewFromInt(103).Equal(mm.Max))

	// 没有成交：全是 0
	avg, err = s.AveragePrice(ctx, "NONE", time.Hour)
	require.NoError(t, err)
	assert.True(t, avg.IsZero())
	mm, err = s.MinMaxPrice(ctx, "NONE", time.Hour)
	require.NoError(t, err)
	assert.True(t, mm.Min.IsZero())
	assert.True(t, mm.Max.IsZero())

	_, err = s.CountTrades(ctx, "GOOG", 0)
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestStore_TopSymbolsAndReset(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTrades(ctx, []Trade{
		row("A", 1, 10, time.Minute),
		row("B", 1, 30, time.Minute),
		row("A", 1, 25, time.Minute),
		row("C", 1, 5, time.Minute),
		row("C", 1, 1000, 3*time.Hour), // 窗口外
	}, 0))

	top, err := s.TopSymbolsByVolume(ctx, time.Hour, 2)
	require.NoError(t, err)
	assert.Equal(t, []SymbolVolume{{Symbol: "A", TotalVolume: 35}, {Symbol: "B", TotalVolume: 30}}, top)

	require.NoError(t, s.Reset(ctx))
	n, err := s.CountTrades(ctx, "A", time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

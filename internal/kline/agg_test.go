package kline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jasdaq.com/internal/engine"
	"jasdaq.com/internal/matching"
)

var t0 = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

func ms(d time.Duration) int64 { return t0.Add(d).UnixMilli() }

func TestKline_BucketStartMs(t *testing.T) {
	intervalMs := time.Hour.Milliseconds()
	offsetMs := (30 * time.Minute).Milliseconds()

	base := t0.UnixMilli()
	assert.Equal(t, base, bucketStartMs(base+59*60_000, intervalMs, 0))
	// 按 +30m 对齐：10:00 落在 [9:30, 10:30)
	assert.Equal(t, base-offsetMs, bucketStartMs(base, intervalMs, offsetMs))
}

func TestTF(t *testing.T) {
	assert.Equal(t, "1m", TF(time.Minute))
	assert.Equal(t, "1h", TF(time.Hour))
	assert.Equal(t, "1d", TF(24*time.Hour))
	assert.Equal(t, "5s", TF(5*time.Second))
}

func TestTradeAgg_OHLCV(t *testing.T) {
	var out []Bar
	a := NewTradeAgg(time.Minute, 0, func(b Bar) { out = append(out, b) })

	a.OfferTrade(Trade{Symbol: "X", Price: 100, Qty: 1, TsMs: ms(1 * time.Second)})
	a.OfferTrade(Trade{Symbol: "X", Price: 105, Qty: 2, TsMs: ms(10 * time.Second)})
	a.OfferTrade(Trade{Symbol: "X", Price: 98, Qty: 3, TsMs: ms(20 * time.Second)})
	a.OfferTrade(Trade{Symbol: "X", Price: 101, Qty: 4, TsMs: ms(59 * time.Second)})
	require.Empty(t, out)

	// 下一分钟的成交让上一根收盘
	a.OfferTrade(Trade{Symbol: "X", Price: 102, Qty: 1, TsMs: ms(61 * time.Second)})
	require.Len(t, out, 1)
	b := out[0]
	assert.Equal(t, "1m", b.TF)
	assert.Equal(t, ms(0), b.StartMs)
	assert.Equal(t, ms(time.Minute), b.EndMs)
	assert.Equal(t, [4]int64{100, 105, 98, 101}, [4]int64{b.Open, b.High, b.Low, b.Close})
	assert.Equal(t, int64(10), b.Volume)
	assert.Equal(t, int64(4), b.Count)

	cur, ok := a.Current("X")
	require.True(t, ok)
	assert.Equal(t, int64(102), cur.Open)
}

func TestTradeAgg_CloseBeforeAndFlush(t *testing.T) {
	var out []Bar
	a := NewTradeAgg(time.Minute, 0, func(b Bar) { out = append(out, b) })
	a.OfferTrade(Trade{Symbol: "X", Price: 1, Qty: 1, TsMs: ms(0)})
	a.OfferTrade(Trade{Symbol: "Y", Price: 2, Qty: 1, TsMs: ms(30 * time.Second)})

	a.CloseBefore(ms(30 * time.Second))
	assert.Empty(t, out)
	a.CloseBefore(ms(time.Minute))
	assert.Len(t, out, 2)

	a.OfferTrade(Trade{Symbol: "X", Price: 1, Qty: 1, TsMs: ms(2 * time.Minute)})
	a.Flush()
	assert.Len(t, out, 3)
	_, ok := a.Current("X")
	assert.False(t, ok)
}

func TestRollupAgg_FillGaps(t *testing.T) {
	var out []Bar
	r := NewRollupAgg(time.Hour, 0, true, func(b Bar) { out = append(out, b) })

	child := func(at time.Duration, o, h, l, c, v int64) Bar {
		return Bar{Symbol: "X", StartMs: ms(at), EndMs: ms(at + time.Minute), Open: o, High: h, Low: l, Close: c, Volume: v, Count: 1}
	}
	r.OfferBar(child(0, 10, 12, 9, 11, 1))
	r.OfferBar(child(30*time.Minute, 11, 15, 11, 14, 2))
	// 跳过 11:00，直接到 12:00
	r.OfferBar(child(2*time.Hour, 20, 20, 20, 20, 1))

	require.Len(t, out, 2)
	assert.Equal(t, [5]int64{10, 15, 9, 14, 3}, [5]int64{out[0].Open, out[0].High, out[0].Low, out[0].Close, out[0].Volume})
	assert.Equal(t, int64(2), out[0].Count)

	gap := out[1]
	assert.Equal(t, ms(time.Hour), gap.StartMs)
	assert.Equal(t, int64(14), gap.Open)
	assert.Equal(t, int64(14), gap.Close)
	assert.Zero(t, gap.Volume)

	// 乱序的子 bar 丢掉
	r.OfferBar(child(time.Hour, 1, 1, 1, 1, 1))
	cur, ok := r.Current("X")
	require.True(t, ok)
	assert.Equal(t, int64(1), cur.Volume)
}

func tradeEvent(sym string, price, qty int64, at time.Duration) engine.Event {
	return engine.Event{
		Type: engine.EvTrade, Symbol: sym, Price: price, Qty: qty,
		Side: matching.Buy, Ts: t0.Add(at).UnixNano(),
	}
}

func TestAggregator_HandleAndBars(t *testing.T) {
	var closed []Bar
	a := NewAggregator(Config{Keep: 2}, func(b Bar) { closed = append(closed, b) })
	ctx := context.Background()

	// 非成交事件忽略
	require.NoError(t, a.Handle(ctx, engine.Event{Type: engine.EvRested, Symbol: "X", Price: 1}))
	assert.Empty(t, a.Bars("X", "1m", 0))

	for i := 0; i < 4; i++ {
		require.NoError(t, a.Handle(ctx, tradeEvent("X", int64(100+i), 1, time.Duration(i)*time.Minute)))
	}
	// 3 根已收盘的 1m
	assert.Len(t, closed, 3)

	bars := a.Bars("X", "1m", 0)
	require.Len(t, bars, 3) // keep=2 + 当前这根
	assert.Equal(t, int64(101), bars[0].Open)
	assert.Equal(t, int64(103), bars[2].Open)

	assert.Len(t, a.Bars("X", "1m", 1), 2)

	// 1h 还没收盘，只能看到当前那根（由已收盘的 1m 合成）
	h := a.Bars("X", "1h", 0)
	require.Len(t, h, 1)
	assert.Equal(t, int64(3), h[0].Volume)

	a.Tick(t0.Add(time.Hour))
	h = a.Bars("X", "1h", 0)
	require.Len(t, h, 1)
	assert.Equal(t, int64(4), h[0].Volume)
	assert.Equal(t, ms(0), h[0].StartMs)
	assert.Equal(t, "1h", closed[len(closed)-1].TF)
}

package matching

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestBook() *OrderBook {
	return NewOrderBookWithClock(FixedClock(testNow))
}

func mustLimit(t *testing.T, b *OrderBook, id uint64, side Side, qty, price int64) []Trade {
	t.Helper()
	trades, err := b.PlaceLimit(NewLimitOrder(id, side, qty, price))
	require.NoError(t, err)
	require.NoError(t, b.CheckInvariants())
	return trades
}

func TestOrderBook_Scenarios(t *testing.T) {
	b := newTestBook()

	// A: 空簿挂买单
	trades := mustLimit(t, b, 1, Buy, 100, 50)
	assert.Empty(t, trades)
	bid, ok := b.BestBid()
	assert.True(t, ok)
	assert.Equal(t, int64(50), bid)
	_, ok = b.BestAsk()
	assert.False(t, ok)

	// B: 卖单以 45 穿价，成交价取挂单价 50
	trades = mustLimit(t, b, 2, Sell, 50, 45)
	require.Len(t, trades, 1)
	assert.Equal(t, Trade{BuyOrderID: 1, SellOrderID: 2, Qty: 50, Price: 50, Timestamp: testNow, TakerSide: Sell, MakerRemaining: 50}, trades[0])
	o, ok := b.Order(1)
	require.True(t, ok)
	assert.Equal(t, int64(50), o.Qty)
	bid, _ = b.BestBid()
	assert.Equal(t, int64(50), bid)
	_, ok = b.BestAsk()
	assert.False(t, ok)

	// C: 市价卖单吃完剩余
	mkt := NewMarketOrder(3, Sell, 50)
	trades, err := b.PlaceMarket(mkt)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(1), trades[0].BuyOrderID)
	assert.Equal(t, uint64(3), trades[0].SellOrderID)
	assert.Equal(t, int64(50), trades[0].Qty)
	assert.Equal(t, int64(50), trades[0].Price)
	assert.Equal(t, int64(0), mkt.Qty)
	assert.Equal(t, 0, b.Len())
	_, ok = b.BestBid()
	assert.False(t, ok)
	_, ok = b.BestAsk()
	assert.False(t, ok)

	// D: 撤一个不存在的单
	before := b.Snapshot()
	_, ok = b.Cancel(99)
	assert.False(t, ok)
	assert.Equal(t, before, b.Snapshot())
	require.NoError(t, b.CheckInvariants())
}

func TestOrderBook_FIFOWithinLevel(t *testing.T) {
	b := newTestBook()
	mustLimit(t, b, 1, Sell, 10, 100)
	mustLimit(t, b, 2, Sell, 10, 100)
	mustLimit(t, b, 3, Sell, 10, 100)

	trades := mustLimit(t, b, 4, Buy, 25, 100)
	require.Len(t, trades, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{trades[0].SellOrderID, trades[1].SellOrderID, trades[2].SellOrderID})
	assert.Equal(t, []int64{10, 10, 5}, []int64{trades[0].Qty, trades[1].Qty, trades[2].Qty})
	assert.Equal(t, int64(5), trades[2].MakerRemaining)

	o, ok := b.Order(3)
	require.True(t, ok)
	assert.Equal(t, int64(5), o.Qty)
	assert.False(t, b.Has(4), "fully filled taker must not rest")
}

func TestOrderBook_SweepAcrossLevels(t *testing.T) {
	b := newTestBook()
	mustLimit(t, b, 1, Sell, 5, 101)
	mustLimit(t, b, 2, Sell, 5, 103)
	mustLimit(t, b, 3, Sell, 5, 102)

	trades := mustLimit(t, b, 10, Buy, 12, 102)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(101), trades[0].Price)
	assert.Equal(t, int64(102), trades[1].Price)

	// 剩余 2 挂在 102，不能穿过 103
	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	assert.Equal(t, int64(102), bid)
	assert.Equal(t, int64(103), ask)
	spread, ok := b.Spread()
	assert.True(t, ok)
	assert.Equal(t, int64(1), spread)

	snap := b.Snapshot()
	assert.Equal(t, []LevelView{{Price: 102, Volume: 2, Orders: 1}}, snap.Bids)
	assert.Equal(t, []LevelView{{Price: 103, Volume: 5, Orders: 1}}, snap.Asks)
}

func TestOrderBook_PriceImprovementGoesToTaker(t *testing.T) {
	b := newTestBook()
	mustLimit(t, b, 1, Buy, 10, 99)
	trades := mustLimit(t, b, 2, Sell, 10, 90)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(99), trades[0].Price)
}

func TestOrderBook_NoCrossRests(t *testing.T) {
	b := newTestBook()
	mustLimit(t, b, 1, Buy, 10, 99)
	trades := mustLimit(t, b, 2, Sell, 10, 100)
	assert.Empty(t, trades)
	assert.Equal(t, 2, b.Len())
	bids, asks := b.Depth()
	assert.Equal(t, 1, bids)
	assert.Equal(t, 1, asks)
}

func TestOrderBook_SnapshotOrdering(t *testing.T) {
	b := newTestBook()
	for i, p := range []int64{97, 99, 98, 99} {
		mustLimit(t, b, uint64(i+1), Buy, 1, p)
	}
	for i, p := range []int64{104, 102, 103} {
		mustLimit(t, b, uint64(i+10), Sell, 2, p)
	}
	snap := b.Snapshot()
	assert.Equal(t, []LevelView{
		{Price: 99, Volume: 2, Orders: 2},
		{Price: 98, Volume: 1, Orders: 1},
		{Price: 97, Volume: 1, Orders: 1},
	}, snap.Bids)
	assert.Equal(t, []LevelView{
		{Price: 102, Volume: 2, Orders: 1},
		{Price: 103, Volume: 2, Orders: 1},
		{Price: 104, Volume: 2, Orders: 1},
	}, snap.Asks)
}

func TestOrderBook_CancelIdempotent(t *testing.T) {
	b := newTestBook()
	mustLimit(t, b, 1, Buy, 10, 50)
	mustLimit(t, b, 2, Buy, 20, 50)
	mustLimit(t, b, 3, Buy, 30, 50)

	o, ok := b.Cancel(2)
	require.True(t, ok)
	assert.Equal(t, int64(20), o.Qty)
	require.NoError(t, b.CheckInvariants())

	_, ok = b.Cancel(2)
	assert.False(t, ok)

	snap := b.Snapshot()
	assert.Equal(t, []LevelView{{Price: 50, Volume: 40, Orders: 2}}, snap.Bids)

	// 中间的单撤掉后 1 -> 3 的顺序不变
	trades := mustLimit(t, b, 4, Sell, 40, 50)
	require.Len(t, trades, 2)
	assert.Equal(t, uint64(1), trades[0].BuyOrderID)
	assert.Equal(t, uint64(3), trades[1].BuyOrderID)
}

func TestOrderBook_CancelRestoresBook(t *testing.T) {
	b := newTestBook()
	mustLimit(t, b, 1, Sell, 10, 100)
	mustLimit(t, b, 2, Buy, 10, 90)
	before := b.Snapshot()

	mustLimit(t, b, 3, Buy, 5, 95)
	_, ok := b.Cancel(3)
	require.True(t, ok)
	assert.Equal(t, before, b.Snapshot())
	bid, _ := b.BestBid()
	assert.Equal(t, int64(90), bid)
	require.NoError(t, b.CheckInvariants())
}

func TestOrderBook_CancelLastOrderRemovesLevel(t *testing.T) {
	b := newTestBook()
	mustLimit(t, b, 1, Sell, 10, 100)
	mustLimit(t, b, 2, Sell, 10, 101)
	_, ok := b.Cancel(1)
	require.True(t, ok)
	ask, ok := b.BestAsk()
	assert.True(t, ok)
	assert.Equal(t, int64(101), ask)

	// 同一个价位重新出现
	mustLimit(t, b, 3, Sell, 1, 100)
	ask, _ = b.BestAsk()
	assert.Equal(t, int64(100), ask)
}

func TestOrderBook_MarketRemainderDropped(t *testing.T) {
	b := newTestBook()
	mustLimit(t, b, 1, Sell, 30, 100)
	mustLimit(t, b, 2, Sell, 30, 110)

	o := NewMarketOrder(3, Buy, 100)
	trades, err := b.PlaceMarket(o)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(40), o.Qty)
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.Has(3))
}

func TestOrderBook_MarketOnEmptyBook(t *testing.T) {
	b := newTestBook()
	o := NewMarketOrder(1, Sell, 10)
	trades, err := b.PlaceMarket(o)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, int64(10), o.Qty)
	assert.Equal(t, 0, b.Len())
}

func TestOrderBook_Validation(t *testing.T) {
	b := newTestBook()
	mustLimit(t, b, 1, Buy, 10, 50)

	cases := []struct {
		name string
		o    *Order
		err  error
	}{
		{"nil", nil, ErrInvalidOrder},
		{"zero id", NewLimitOrder(0, Buy, 1, 1), ErrInvalidOrder},
		{"zero qty", NewLimitOrder(2, Buy, 0, 1), ErrInvalidOrder},
		{"negative qty", NewLimitOrder(2, Buy, -5, 1), ErrInvalidOrder},
		{"zero price", NewLimitOrder(2, Buy, 1, 0), ErrInvalidOrder},
		{"negative price", NewLimitOrder(2, Sell, 1, -1), ErrInvalidOrder},
		{"bad side", &Order{ID: 2, Side: 7, Kind: LimitAt(1), Qty: 1}, ErrInvalidOrder},
		{"bad type", &Order{ID: 2, Side: Buy, Qty: 1}, ErrInvalidOrder},
		{"market via limit", NewMarketOrder(2, Buy, 1), ErrInvalidOrder},
		{"duplicate", NewLimitOrder(1, Sell, 1, 60), ErrDuplicateOrder},
	}
	before := b.Snapshot()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.PlaceLimit(tc.o)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, before, b.Snapshot())
		})
	}

	_, err := b.PlaceMarket(NewMarketOrder(2, Buy, 0))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = b.PlaceMarket(NewLimitOrder(2, Buy, 1, 10))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	require.NoError(t, b.CheckInvariants())
}

func TestOrderBook_IDReusableAfterFill(t *testing.T) {
	b := newTestBook()
	mustLimit(t, b, 1, Buy, 10, 50)
	mustLimit(t, b, 2, Sell, 10, 50)
	assert.Equal(t, 0, b.Len())
	mustLimit(t, b, 1, Sell, 5, 55)
	assert.True(t, b.Has(1))
}

func TestOrderBook_ArenaReusesSlots(t *testing.T) {
	b := newTestBook()
	for i := uint64(1); i <= 100; i++ {
		mustLimit(t, b, i, Buy, 1, 10)
		_, ok := b.Cancel(i)
		require.True(t, ok)
	}
	assert.LessOrEqual(t, len(b.arena.slots), 1)
}

// 随机下单/撤单，每一步都检查订单簿结构和数量守恒
func TestOrderBook_RandomizedInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	b := newTestBook()
	live := make([]uint64, 0, 256)

	var nextID uint64
	for step := 0; step < 5000; step++ {
		switch x := r.Intn(10); {
		case x < 6:
			nextID++
			side := Buy
			if r.Intn(2) == 0 {
				side = Sell
			}
			o := NewLimitOrder(nextID, side, int64(1+r.Intn(20)), int64(95+r.Intn(11)))
			qty := o.Qty
			trades, err := b.PlaceLimit(o)
			require.NoError(t, err)
			var filled int64
			for _, tr := range trades {
				filled += tr.Qty
				assert.Equal(t, side, tr.TakerSide)
			}
			assert.Equal(t, qty, filled+o.Qty)
			if o.Qty > 0 {
				live = append(live, o.ID)
			}
		case x < 8:
			nextID++
			o := NewMarketOrder(nextID, Side(1+r.Intn(2)), int64(1+r.Intn(30)))
			_, err := b.PlaceMarket(o)
			require.NoError(t, err)
			assert.False(t, b.Has(o.ID))
		default:
			if len(live) == 0 {
				continue
			}
			i := r.Intn(len(live))
			b.Cancel(live[i])
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
		}
		require.NoError(t, b.CheckInvariants(), "step %d", step)
	}
}

func TestOrderBook_CheckInvariantsCatchesCorruption(t *testing.T) {
	b := newTestBook()
	mustLimit(t, b, 1, Buy, 10, 50)
	mustLimit(t, b, 2, Sell, 5, 60)

	b.bids.levels[50].volume = 99
	err := b.CheckInvariants()
	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "CheckInvariants", ie.Op)
	assert.Contains(t, ie.Detail, "level 50 volume 99/10")

	b.bids.levels[50].volume = 10
	require.NoError(t, b.CheckInvariants())

	// 索引里多一个不在任何价位上的订单
	b.byID[77] = b.byID[2]
	require.ErrorAs(t, b.CheckInvariants(), &ie)
	delete(b.byID, 77)
	require.NoError(t, b.CheckInvariants())
}

func TestOrderBook_CancelPanicsOnMissingLevel(t *testing.T) {
	b := newTestBook()
	mustLimit(t, b, 1, Buy, 10, 50)
	delete(b.bids.levels, 50)

	defer func() {
		r := recover()
		require.NotNil(t, r, "cancel over a missing level must panic")
		ie, ok := r.(*InvariantError)
		require.True(t, ok)
		assert.Equal(t, "OrderBook.Cancel", ie.Op)
	}()
	b.Cancel(1)
}

func BenchmarkOrderBook_PlaceLimit(b *testing.B) {
	r := rand.New(rand.NewSource(1))
	book := NewOrderBook()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		side := Buy
		if i&1 == 1 {
			side = Sell
		}
		_, _ = book.PlaceLimit(NewLimitOrder(uint64(i+1), side, int64(1+r.Intn(10)), int64(9900+r.Intn(200))))
	}
}

func BenchmarkOrderBook_Cancel(b *testing.B) {
	book := NewOrderBook()
	for i := 0; i < b.N; i++ {
		_, _ = book.PlaceLimit(NewLimitOrder(uint64(i+1), Buy, 1, int64(1000+i%500)))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		book.Cancel(uint64(i + 1))
	}
}

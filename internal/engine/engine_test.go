package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jasdaq.com/internal/matching"
)

var testNow = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func fixedBooks(string) *matching.MatchingEngine {
	return matching.NewMatchingEngineWithBook(matching.NewOrderBookWithClock(matching.FixedClock(testNow)))
}

func newTestEngine(t *testing.T, cfg EngineConfig) *Engine {
	t.Helper()
	if cfg.BookFactory == nil {
		cfg.BookFactory = fixedBooks
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e
}

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timeout, got %d/%d events: %+v", len(out), n, out)
		}
	}
	return out
}

func assertNoEvent(t *testing.T, ch <-chan Event, d time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("expected no event, got %s seq=%d idx=%d", ev.Type, ev.Seq, ev.Idx)
	case <-time.After(d):
	}
}

func types(evs []Event) []EventType {
	out := make([]EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func TestEngine_PlaceAndEvents(t *testing.T) {
	e := newTestEngine(t, EngineConfig{Symbols: []string{"TSLA"}})
	ctx := context.Background()

	buy := *matching.NewLimitOrder(1, matching.Buy, 100, 50)
	buy.ClientID = "alice"
	res, err := e.Place(ctx, "TSLA", buy)
	require.NoError(t, err)
	assert.Equal(t, matching.StatusResting, res.Status)

	sell := *matching.NewLimitOrder(2, matching.Sell, 50, 45)
	sell.ClientID = "bob"
	res, err = e.Place(ctx, "TSLA", sell)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, int64(50), res.Trades[0].Price)

	evs := collect(t, e.Events(), 5)
	assert.Equal(t, []EventType{EvAccepted, EvRested, EvAccepted, EvTrade, EvFilled}, types(evs))

	// 每条命令一个 seq，命令内 idx 从 0 递增
	assert.Equal(t, []uint64{1, 1, 2, 2, 2}, []uint64{evs[0].Seq, evs[1].Seq, evs[2].Seq, evs[3].Seq, evs[4].Seq})
	assert.Equal(t, []uint16{0, 1, 0, 1, 2}, []uint16{evs[0].Idx, evs[1].Idx, evs[2].Idx, evs[3].Idx, evs[4].Idx})

	assert.Equal(t, "alice", evs[0].ClientID)
	assert.Equal(t, int64(100), evs[0].Qty)
	tr := evs[3]
	assert.Equal(t, "TSLA", tr.Symbol)
	assert.Equal(t, uint64(1), tr.BuyOrderID)
	assert.Equal(t, uint64(2), tr.SellOrderID)
	assert.Equal(t, matching.Sell, tr.Side)
	assert.Equal(t, int64(50), tr.MakerRemaining)
	assert.Equal(t, testNow.UnixNano(), tr.Ts)
	assert.Equal(t, res.Trades[0].Qty, tr.Trade().Qty)

	q, err := e.Quote("TSLA")
	require.NoError(t, err)
	assert.True(t, q.HasBid)
	assert.Equal(t, int64(50), q.LastPrice)
}

func TestEngine_MarketExpireAndCancel(t *testing.T) {
	e := newTestEngine(t, EngineConfig{Symbols: []string{"HIND"}})
	ctx := context.Background()

	_, err := e.Place(ctx, "HIND", *matching.NewLimitOrder(1, matching.Sell, 10, 100))
	require.NoError(t, err)
	_, err = e.Place(ctx, "HIND", *matching.NewLimitOrder(2, matching.Sell, 10, 105))
	require.NoError(t, err)

	res, err := e.Place(ctx, "HIND", *matching.NewMarketOrder(3, matching.Buy, 15))
	require.NoError(t, err)
	assert.Equal(t, matching.StatusFilled, res.Status)

	o, ok, err := e.Cancel(ctx, "HIND", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), o.Qty)

	_, ok, err = e.Cancel(ctx, "HIND", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	res, err = e.Place(ctx, "HIND", *matching.NewMarketOrder(4, matching.Buy, 7))
	require.NoError(t, err)
	assert.Equal(t, matching.StatusExpired, res.Status)
	assert.Equal(t, int64(7), res.Remaining)

	evs := collect(t, e.Events(), 11)
	assert.Equal(t, []EventType{
		EvAccepted, EvRested,
		EvAccepted, EvRested,
		EvAccepted, EvTrade, EvTrade, EvFilled,
		EvCanceled,
		EvAccepted, EvExpired,
	}, types(evs))
	assert.Equal(t, int64(7), evs[10].Qty)
}

func TestEngine_RejectInvalid(t *testing.T) {
	e := newTestEngine(t, EngineConfig{Symbols: []string{"RELI"}})
	_, err := e.Place(context.Background(), "RELI", *matching.NewLimitOrder(1, matching.Buy, 0, 10))
	assert.ErrorIs(t, err, matching.ErrInvalidOrder)

	_, err = e.Place(context.Background(), "RELI", matching.Order{ID: 2, Side: 9, Kind: matching.LimitAt(1), Qty: 1})
	assert.ErrorIs(t, err, matching.ErrInvalidOrder)

	evs := collect(t, e.Events(), 2)
	assert.Equal(t, EvRejected, evs[0].Type)
	assert.NotEmpty(t, evs[0].Reason)
	assert.Equal(t, matching.Side(0), evs[1].Side)
}

func TestEngine_UnknownAndDynamicSymbols(t *testing.T) {
	e := newTestEngine(t, EngineConfig{Symbols: []string{"TSLA"}})
	_, err := e.Place(context.Background(), "NOPE", *matching.NewLimitOrder(1, matching.Buy, 1, 1))
	assert.ErrorIs(t, err, ErrUnknownSym)
	_, err = e.Snapshot("NOPE")
	assert.ErrorIs(t, err, ErrUnknownSym)

	d := newTestEngine(t, EngineConfig{AllowDynamicSymbols: true})
	_, err = d.Snapshot("ADNI")
	assert.ErrorIs(t, err, ErrUnknownSym, "reads never create a book")
	_, err = d.Place(context.Background(), "ADNI", *matching.NewLimitOrder(1, matching.Buy, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"ADNI"}, d.Symbols())
}

func TestEngine_SymbolsAreIndependent(t *testing.T) {
	e := newTestEngine(t, EngineConfig{Symbols: []string{"TSLA", "HIND"}})
	ctx := context.Background()
	_, err := e.Place(ctx, "TSLA", *matching.NewLimitOrder(1, matching.Buy, 10, 50))
	require.NoError(t, err)
	res, err := e.Place(ctx, "HIND", *matching.NewLimitOrder(2, matching.Sell, 10, 50))
	require.NoError(t, err)
	assert.Empty(t, res.Trades)

	// 同一个 id 在不同标的互不影响
	_, err = e.Place(ctx, "HIND", *matching.NewLimitOrder(1, matching.Sell, 10, 60))
	require.NoError(t, err)
	assert.Equal(t, []string{"HIND", "TSLA"}, e.Symbols())
}

func TestActor_MailboxFull(t *testing.T) {
	a := NewSymbolActor("TSLA", matching.NewMatchingEngine(), ActorConfig{MailboxSize: 1, BatchMax: 1}, busOutbox{bus: NewChanBus(1)}, nil)
	require.NoError(t, a.TryEnqueue(Command{Type: CmdPlace}))
	assert.ErrorIs(t, a.TryEnqueue(Command{Type: CmdPlace}), ErrEngineBusy)
	assert.Equal(t, uint64(1), a.MailboxFull())
}

func TestEngine_StopRejectsNewCommands(t *testing.T) {
	e, err := NewEngine(EngineConfig{Symbols: []string{"TSLA"}})
	require.NoError(t, err)
	e.Stop()
	_, err = e.Place(context.Background(), "TSLA", *matching.NewLimitOrder(1, matching.Buy, 1, 1))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEngine_ContextCanceledWhileWaiting(t *testing.T) {
	e := newTestEngine(t, EngineConfig{Symbols: []string{"TSLA"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Place(ctx, "TSLA", *matching.NewLimitOrder(1, matching.Buy, 1, 1))
	// 可能已经拿到回执，也可能先看到 ctx 取消
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestEngine_TrySubmitIsAsync(t *testing.T) {
	e := newTestEngine(t, EngineConfig{Symbols: []string{"TSLA"}})
	require.NoError(t, e.TrySubmit("TSLA", Command{Type: CmdPlace, Order: *matching.NewLimitOrder(1, matching.Buy, 1, 10)}))
	assert.ErrorIs(t, e.TrySubmit("TSLA", Command{}), ErrBadCommand)
	evs := collect(t, e.Events(), 2)
	assert.Equal(t, []EventType{EvAccepted, EvRested}, types(evs))
}

func BenchmarkEngine_PlaceRoundTrip(b *testing.B) {
	e, err := NewEngine(EngineConfig{Symbols: []string{"TSLA"}, BusSize: 1 << 10})
	if err != nil {
		b.Fatal(err)
	}
	defer e.Stop()
	go func() {
		for range e.Events() {
		}
	}()
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		side := matching.Buy
		if i&1 == 1 {
			side = matching.Sell
		}
		if _, err := e.Place(ctx, "TSLA", *matching.NewLimitOrder(uint64(i+1), side, 10, 100)); err != nil {
			b.Fatal(err)
		}
	}
}

// flakyOutbox Append 正常，Flush 失败
type flakyOutbox struct {
	flushErr  error
	appendErr error
}

func (o *flakyOutbox) Append(Event) error        { return o.appendErr }
func (o *flakyOutbox) AppendCmdEnd(uint64) error { return nil }
func (o *flakyOutbox) Flush() error              { return o.flushErr }
func (o *flakyOutbox) Close() error              { return nil }

func runActor(t *testing.T, a *SymbolActor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)
}

func placeCmd(o *matching.Order) Command {
	return Command{Type: CmdPlace, Order: *o, reply: make(chan Reply, 1)}
}

func TestActor_FlushFailureRepliesAppliedResult(t *testing.T) {
	me := matching.NewMatchingEngine()
	a := NewSymbolActor("TSLA", me, ActorConfig{BatchMax: 1}, &flakyOutbox{flushErr: errors.New("disk full")}, nil)
	runActor(t, a)

	cmd := placeCmd(matching.NewLimitOrder(1, matching.Buy, 10, 50))
	require.NoError(t, a.TryEnqueue(cmd))

	select {
	case r := <-cmd.reply:
		assert.ErrorIs(t, r.Err, ErrJournal)
		assert.Contains(t, r.Err.Error(), "disk full")
		assert.Equal(t, matching.StatusResting, r.Result.Status)
	case <-time.After(time.Second):
		t.Fatal("no reply after flush failure")
	}
	_, ok := me.Order(1)
	assert.True(t, ok, "book already holds the order")

	<-a.Done()
	assert.ErrorIs(t, a.TryEnqueue(placeCmd(matching.NewLimitOrder(2, matching.Buy, 1, 1))), ErrStopped)
}

func TestActor_AppendFailureRepliesCurrentCommand(t *testing.T) {
	a := NewSymbolActor("TSLA", matching.NewMatchingEngine(), ActorConfig{}, &flakyOutbox{appendErr: errors.New("io")}, nil)
	runActor(t, a)

	cmd := placeCmd(matching.NewLimitOrder(1, matching.Sell, 5, 60))
	require.NoError(t, a.TryEnqueue(cmd))
	select {
	case r := <-cmd.reply:
		assert.ErrorIs(t, r.Err, ErrJournal)
	case <-time.After(time.Second):
		t.Fatal("no reply after append failure")
	}
}

func TestActor_DebugChecksBookAfterEachCommand(t *testing.T) {
	e := newTestEngine(t, EngineConfig{Symbols: []string{"TSLA"}, ActorCfg: ActorConfig{Debug: true}, BusSize: 64})
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		side := matching.Buy
		if i%2 == 0 {
			side = matching.Sell
		}
		_, err := e.Place(ctx, "TSLA", *matching.NewLimitOrder(uint64(i), side, int64(i), int64(100+i%3)))
		require.NoError(t, err)
	}
	a, err := e.Lookup("TSLA")
	require.NoError(t, err)
	require.NotNil(t, a.check)

	a.check = func() error { return &matching.InvariantError{Op: "CheckInvariants", Detail: "broken"} }
	assert.Panics(t, func() { a.verify(ctx, 99) })

	plain := NewSymbolActor("HIND", matching.NewMatchingEngine(), ActorConfig{}, busOutbox{bus: NewChanBus(1)}, nil)
	assert.Nil(t, plain.check)
}

func TestEngine_SymbolLength(t *testing.T) {
	long := "ABCDEFGHIJKLMNOPQ" // 17
	_, err := NewEngine(EngineConfig{Symbols: []string{long}})
	assert.ErrorIs(t, err, ErrBadSymbol)

	d := newTestEngine(t, EngineConfig{AllowDynamicSymbols: true})
	_, err = d.Place(context.Background(), long, *matching.NewLimitOrder(1, matching.Buy, 1, 1))
	assert.ErrorIs(t, err, ErrBadSymbol)
	_, err = d.Place(context.Background(), long[:MaxSymbolLen], *matching.NewLimitOrder(1, matching.Buy, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{long[:MaxSymbolLen]}, d.Symbols())
}

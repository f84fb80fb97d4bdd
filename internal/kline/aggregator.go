package kline

import (
	"context"
	"sync"
	"time"

	"jasdaq.com/internal/engine"
)

type Config struct {
	TZOffset   time.Duration
	FillGaps1h bool
	Keep       int // 每个 symbol 每个周期保留多少根已收盘 bar
}

// Aggregator 从撮合事件生成 1m/1h K 线
// Handle 由 Dispatcher 调用；Run 按墙钟收盘，两者之间用 mu 保护
type Aggregator struct {
	mu   sync.Mutex
	m1   *TradeAgg
	h1   *RollupAgg
	keep int
	hist map[string]map[string][]Bar // tf -> symbol -> 已收盘 bar，旧的在前

	out func(Bar)
	now func() time.Time
}

// NewAggregator out 在 bar 收盘时被调用（持有锁，不要在里面回调 Aggregator）
func NewAggregator(cfg Config, out func(Bar)) *Aggregator {
	if cfg.Keep <= 0 {
		cfg.Keep = 500
	}
	if out == nil {
		out = func(Bar) {}
	}
	a := &Aggregator{
		keep: cfg.Keep,
		hist: make(map[string]map[string][]Bar, 2),
		out:  out,
		now:  time.Now,
	}
	a.h1 = NewRollupAgg(time.Hour, cfg.TZOffset, cfg.FillGaps1h, a.closed)
	a.m1 = NewTradeAgg(time.Minute, cfg.TZOffset, func(b Bar) {
		a.closed(b)
		a.h1.OfferBar(b)
	})
	return a
}

func (a *Aggregator) Name() string { return "kline" }

func (a *Aggregator) Handle(_ context.Context, ev engine.Event) error {
	if ev.Type != engine.EvTrade {
		return nil
	}
	a.mu.Lock()
	a.m1.OfferTrade(Trade{
		Symbol: ev.Symbol,
		Price:  ev.Price,
		Qty:    ev.Qty,
		TsMs:   time.Unix(0, ev.Ts).UnixMilli(),
	})
	a.mu.Unlock()
	return nil
}

// Run 每隔 every 把到点的 bar 收盘；ctx 结束时 flush
func (a *Aggregator) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			a.mu.Lock()
			a.m1.Flush()
			a.h1.Flush()
			a.mu.Unlock()
			return
		case <-t.C:
			a.Tick(a.now())
		}
	}
}

func (a *Aggregator) Tick(now time.Time) {
	ms := now.UnixMilli()
	a.mu.Lock()
	// 先收 1m，收盘的 1m 会并进 1h，再收 1h
	a.m1.CloseBefore(ms)
	a.h1.CloseBefore(ms)
	a.mu.Unlock()
}

func (a *Aggregator) closed(b Bar) {
	bySym := a.hist[b.TF]
	if bySym == nil {
		bySym = make(map[string][]Bar, 16)
		a.hist[b.TF] = bySym
	}
	bars := append(bySym[b.Symbol], b)
	if len(bars) > a.keep {
		bars = append(bars[:0], bars[len(bars)-a.keep:]...)
	}
	bySym[b.Symbol] = bars
	a.out(b)
}

// Bars 最近 n 根已收盘 bar（旧的在前），再加上正在构建的那根
func (a *Aggregator) Bars(symbol, tf string, n int) []Bar {
	a.mu.Lock()
	defer a.mu.Unlock()

	bars := a.hist[tf][symbol]
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	out := make([]Bar, len(bars), len(bars)+1)
	copy(out, bars)

	var (
		cur Bar
		ok  bool
	)
	switch tf {
	case "1m":
		cur, ok = a.m1.Current(symbol)
	case "1h":
		cur, ok = a.h1.Current(symbol)
	}
	if ok {
		out = append(out, cur)
	}
	return out
}

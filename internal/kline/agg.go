package kline

import (
	"fmt"
	"time"
)

// Bar K 线（OHLCV）
// - StartMs/EndMs 表示这个 bar 覆盖的时间窗：[Start, End)
// - 价格和数量都是撮合里的整数 tick，不做小数换算
// - Count：TradeAgg 里是成交笔数；RollupAgg 里是合并了多少根子 bar
type Bar struct {
	Symbol   string        `json:"symbol"`
	Interval time.Duration `json:"-"`
	TF       string        `json:"tf"`
	StartMs  int64         `json:"startMs"`
	EndMs    int64         `json:"endMs"`

	Open  int64 `json:"open"`
	High  int64 `json:"high"`
	Low   int64 `json:"low"`
	Close int64 `json:"close"`

	Volume int64 `json:"volume"`
	Count  int64 `json:"count"`
}

func (b Bar) String() string {
	return fmt.Sprintf("%s %s [%d,%d) O=%d H=%d L=%d C=%d V=%d n=%d",
		b.Symbol, b.TF, b.StartMs, b.EndMs, b.Open, b.High, b.Low, b.Close, b.Volume, b.Count)
}

// Trade 聚合器的输入
type Trade struct {
	Symbol string
	Price  int64
	Qty    int64
	TsMs   int64
}

// TradeAgg 每个 symbol 维护一根正在构建的 bar
// 同一 symbol 的成交按撮合顺序到达，时间只会前进；
// 落到更早桶里的成交（时钟回拨）并进当前 bar
type TradeAgg struct {
	intervalMs int64
	offsetMs   int64
	tf         string
	cur        map[string]*Bar
	emit       func(Bar)
}

// NewTradeAgg tzOffset 用于按时区对齐桶边界，0 表示 UTC
func NewTradeAgg(interval, tzOffset time.Duration, emit func(Bar)) *TradeAgg {
	return &TradeAgg{
		intervalMs: interval.Milliseconds(),
		offsetMs:   tzOffset.Milliseconds(),
		tf:         TF(interval),
		cur:        make(map[string]*Bar, 64),
		emit:       emit,
	}
}

func (a *TradeAgg) OfferTrade(t Trade) {
	bs := bucketStartMs(t.TsMs, a.intervalMs, a.offsetMs)
	b := a.cur[t.Symbol]
	if b != nil && bs > b.StartMs {
		a.emit(*b)
		b = nil
	}
	if b == nil {
		a.cur[t.Symbol] = &Bar{
			Symbol:   t.Symbol,
			Interval: time.Duration(a.intervalMs) * time.Millisecond,
			TF:       a.tf,
			StartMs:  bs,
			EndMs:    bs + a.intervalMs,
			Open:     t.Price,
			High:     t.Price,
			Low:      t.Price,
			Close:    t.Price,
			Volume:   t.Qty,
			Count:    1,
		}
		return
	}
	if t.Price > b.High {
		b.High = t.Price
	}
	if t.Price < b.Low {
		b.Low = t.Price
	}
	b.Close = t.Price
	b.Volume += t.Qty
	b.Count++
}

// CloseBefore 没有新成交时靠墙钟收盘：EndMs <= nowMs 的 bar 输出并移除
func (a *TradeAgg) CloseBefore(nowMs int64) {
	for sym, b := range a.cur {
		if b.EndMs <= nowMs {
			a.emit(*b)
			delete(a.cur, sym)
		}
	}
}

// Current 正在构建的 bar
func (a *TradeAgg) Current(symbol string) (Bar, bool) {
	b := a.cur[symbol]
	if b == nil {
		return Bar{}, false
	}
	return *b, true
}

// Flush 输出所有未收盘的 bar，退出/测试用
func (a *TradeAgg) Flush() {
	for sym, b := range a.cur {
		a.emit(*b)
		delete(a.cur, sym)
	}
}

// RollupAgg 低周期 bar 合成高周期 bar（1m -> 1h）
// - Open = 第一个 child 的 Open
// - Close = 最后一个 child 的 Close
// - High/Low = 子 bar 的 max/min
// - Volume = 子 bar Volume 累加
type RollupAgg struct {
	intervalMs int64
	offsetMs   int64
	tf         string
	cur        map[string]*Bar
	emit       func(Bar)

	// 补空K：跳过的桶用上一根的 close 填平
	fillGaps bool
}

func NewRollupAgg(interval, tzOffset time.Duration, fillGaps bool, emit func(Bar)) *RollupAgg {
	return &RollupAgg{
		intervalMs: interval.Milliseconds(),
		offsetMs:   tzOffset.Milliseconds(),
		tf:         TF(interval),
		cur:        make(map[string]*Bar, 64),
		emit:       emit,
		fillGaps:   fillGaps,
	}
}

func (a *RollupAgg) newBar(child Bar, bs int64) *Bar {
	return &Bar{
		Symbol:   child.Symbol,
		Interval: time.Duration(a.intervalMs) * time.Millisecond,
		TF:       a.tf,
		StartMs:  bs,
		EndMs:    bs + a.intervalMs,
		Open:     child.Open,
		High:     child.High,
		Low:      child.Low,
		Close:    child.Close,
		Volume:   child.Volume,
		Count:    1,
	}
}

func (a *RollupAgg) OfferBar(child Bar) {
	bs := bucketStartMs(child.StartMs, a.intervalMs, a.offsetMs)
	cb := a.cur[child.Symbol]
	if cb == nil {
		a.cur[child.Symbol] = a.newBar(child, bs)
		return
	}

	if bs > cb.StartMs {
		// 先输出旧桶
		a.emit(*cb)
		if a.fillGaps {
			for next := cb.EndMs; next < bs; next += a.intervalMs {
				a.emit(Bar{
					Symbol:   child.Symbol,
					Interval: cb.Interval,
					TF:       a.tf,
					StartMs:  next,
					EndMs:    next + a.intervalMs,
					Open:     cb.Close,
					High:     cb.Close,
					Low:      cb.Close,
					Close:    cb.Close,
				})
			}
		}
		a.cur[child.Symbol] = a.newBar(child, bs)
		return
	}
	if bs < cb.StartMs {
		// 乱序的子 bar 丢掉
		return
	}

	// 同桶合并
	if child.High > cb.High {
		cb.High = child.High
	}
	if child.Low < cb.Low {
		cb.Low = child.Low
	}
	cb.Close = child.Close
	cb.Volume += child.Volume
	cb.Count++
}

func (a *RollupAgg) CloseBefore(nowMs int64) {
	for sym, b := range a.cur {
		if b.EndMs <= nowMs {
			a.emit(*b)
			delete(a.cur, sym)
		}
	}
}

func (a *RollupAgg) Current(symbol string) (Bar, bool) {
	b := a.cur[symbol]
	if b == nil {
		return Bar{}, false
	}
	return *b, true
}

func (a *RollupAgg) Flush() {
	for sym, b := range a.cur {
		a.emit(*b)
		delete(a.cur, sym)
	}
}

// TF 周期的短名字：1m/1h/1d
func TF(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return fmt.Sprintf("%ds", d/time.Second)
}

// bucketStartMs 计算时间戳属于哪个桶（毫秒）
// 公式：((ts+off)/interval)*interval - off
func bucketStartMs(tsMs, intervalMs, offsetMs int64) int64 {
	x := tsMs + offsetMs
	return (x/intervalMs)*intervalMs - offsetMs
}

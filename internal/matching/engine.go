package matching

import (
	"fmt"
	"sync"
	"time"
)

// MatchingEngine 单标的撮合入口：校验 -> 交给订单簿 -> 记录最新成交价和成交历史
// 所有方法都拿同一把锁，读写互斥，读不会看到撮合一半的状态
type MatchingEngine struct {
	mu      sync.Mutex
	book    *OrderBook
	history []Trade
	last    int64
	hasLast bool
}

func NewMatchingEngine() *MatchingEngine {
	return &MatchingEngine{book: NewOrderBook()}
}

// NewMatchingEngineWithBook 使用外部构造的订单簿（例如注入时钟）
func NewMatchingEngineWithBook(b *OrderBook) *MatchingEngine {
	if b == nil {
		b = NewOrderBook()
	}
	return &MatchingEngine{book: b}
}

// Place 按订单类型分发
func (e *MatchingEngine) Place(o *Order) (Result, error) {
	if o == nil {
		return Result{}, fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	switch o.Kind.Type {
	case Limit:
		return e.PlaceLimitOrder(o)
	case Market:
		return e.PlaceMarketOrder(o)
	}
	return Result{}, fmt.Errorf("%w: bad order type %d", ErrInvalidOrder, uint8(o.Kind.Type))
}

// PlaceLimitOrder 限价单，剩余部分挂单
func (e *MatchingEngine) PlaceLimitOrder(o *Order) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	want := orderQty(o)
	trades, err := e.book.PlaceLimit(o)
	if err != nil {
		return Result{}, err
	}
	e.record(trades)

	res := Result{OrderID: o.ID, Trades: trades, Filled: want - o.Qty, Remaining: o.Qty, Status: StatusFilled}
	if o.Qty > 0 {
		res.Status = StatusResting
	}
	return res, nil
}

// PlaceMarketOrder 市价单，没成交完的部分丢弃并在结果里标明
func (e *MatchingEngine) PlaceMarketOrder(o *Order) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	want := orderQty(o)
	trades, err := e.book.PlaceMarket(o)
	if err != nil {
		return Result{}, err
	}
	e.record(trades)

	res := Result{OrderID: o.ID, Trades: trades, Filled: want - o.Qty, Remaining: o.Qty, Status: StatusFilled}
	if o.Qty > 0 {
		res.Status = StatusExpired
	}
	return res, nil
}

// CancelOrder 撤单，订单不存在返回 false
func (e *MatchingEngine) CancelOrder(orderID uint64) (Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Cancel(orderID)
}

func (e *MatchingEngine) record(trades []Trade) {
	if len(trades) == 0 {
		return
	}
	e.history = append(e.history, trades...)
	e.last = trades[len(trades)-1].Price
	e.hasLast = true
}

func (e *MatchingEngine) BestBid() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.BestBid()
}

func (e *MatchingEngine) BestAsk() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.BestAsk()
}

func (e *MatchingEngine) Spread() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Spread()
}

// LastTradedPrice 还没有成交时返回 false
func (e *MatchingEngine) LastTradedPrice() (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}

func (e *MatchingEngine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Snapshot()
}

// Quote 一次拿锁读出所有价格
func (e *MatchingEngine) Quote() Quote {
	e.mu.Lock()
	defer e.mu.Unlock()
	var q Quote
	q.BestBid, q.HasBid = e.book.BestBid()
	q.BestAsk, q.HasAsk = e.book.BestAsk()
	q.Spread, q.HasSpread = e.book.Spread()
	q.LastPrice, q.HasLast = e.last, e.hasLast
	return q
}

// TradeHistory 返回成交历史的拷贝，按时间先后
func (e *MatchingEngine) TradeHistory() []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trade, len(e.history))
	copy(out, e.history)
	return out
}

// Order 查询挂单
func (e *MatchingEngine) Order(orderID uint64) (Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Order(orderID)
}

func (e *MatchingEngine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Len()
}

// CheckInvariants 测试和调试用
func (e *MatchingEngine) CheckInvariants() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.CheckInvariants()
}

func orderQty(o *Order) int64 {
	if o == nil {
		return 0
	}
	return o.Qty
}

// FixedClock 测试用的固定时钟
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

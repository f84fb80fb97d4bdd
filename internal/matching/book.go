package matching

import (
	"container/heap"
	"fmt"
	"slices"
	"time"
)

// bookSide 一侧盘口：price -> level，外加一个价格堆找最优价
type bookSide struct {
	side   Side
	levels map[int64]*priceLevel
	prices priceHeap
	queued map[int64]struct{} // 已经在堆里的价格，保证堆里不重复
}

func newBookSide(side Side) *bookSide {
	s := &bookSide{
		side:   side,
		levels: make(map[int64]*priceLevel, 1024),
		prices: priceHeap{desc: side == Buy},
		queued: make(map[int64]struct{}, 1024),
	}
	heap.Init(&s.prices)
	return s
}

func (s *bookSide) level(price int64) *priceLevel {
	lv := s.levels[price]
	if lv == nil {
		lv = newPriceLevel(price)
		s.levels[price] = lv
		if _, ok := s.queued[price]; !ok {
			heap.Push(&s.prices, price) // 新价位出现：入堆
			s.queued[price] = struct{}{}
		}
	}
	return lv
}

// 桶空了直接删；堆里的价格 lazy 删除
func (s *bookSide) dropLevel(price int64) {
	delete(s.levels, price)
}

// best 从堆顶拿最优价；堆顶对应的桶不存在就弹出继续找
func (s *bookSide) best() (int64, bool) {
	for s.prices.Len() > 0 {
		p := s.prices.top()
		if lv := s.levels[p]; lv != nil && !lv.empty() {
			return p, true
		}
		heap.Pop(&s.prices)
		delete(s.queued, p)
	}
	return 0, false
}

func (s *bookSide) view() []LevelView {
	out := make([]LevelView, 0, len(s.levels))
	for _, lv := range s.levels {
		out = append(out, LevelView{Price: lv.price, Volume: lv.volume, Orders: lv.count})
	}
	slices.SortFunc(out, func(a, b LevelView) int {
		if s.side == Buy {
			return cmpInt64(b.Price, a.Price)
		}
		return cmpInt64(a.Price, b.Price)
	})
	return out
}

// OrderBook 单个标的的订单簿
// 不带锁：并发控制由 MatchingEngine / SymbolActor 负责
type OrderBook struct {
	bids  *bookSide
	asks  *bookSide
	arena arena
	byID  map[uint64]int32 // 订单索引：orderID -> slot（撤单 O(1)）
	seq   uint64           // 到达序号
	now   func() time.Time
}

func NewOrderBook() *OrderBook {
	return NewOrderBookWithClock(time.Now)
}

// NewOrderBookWithClock 测试时可以注入固定时钟
func NewOrderBookWithClock(now func() time.Time) *OrderBook {
	if now == nil {
		now = time.Now
	}
	return &OrderBook{
		bids:  newBookSide(Buy),
		asks:  newBookSide(Sell),
		arena: newArena(1024),
		byID:  make(map[uint64]int32, 1024),
		now:   now,
	}
}

// Validate 校验订单，失败时不改任何状态
func (b *OrderBook) Validate(o *Order) error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if o.ID == 0 {
		return fmt.Errorf("%w: order id must be positive", ErrInvalidOrder)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: bad side %d", ErrInvalidOrder, uint8(o.Side))
	}
	if o.Qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrder, o.Qty)
	}
	switch o.Kind.Type {
	case Limit:
		if p, _ := o.Kind.LimitPrice(); p <= 0 {
			return fmt.Errorf("%w: limit price must be positive, got %d", ErrInvalidOrder, p)
		}
	case Market:
	default:
		return fmt.Errorf("%w: bad order type %d", ErrInvalidOrder, uint8(o.Kind.Type))
	}
	return nil
}

// PlaceLimit 限价单：能成交就一直吃对手盘，剩余挂到自己价位的队尾
// 返回的成交按撮合先后排序
func (b *OrderBook) PlaceLimit(o *Order) ([]Trade, error) {
	if err := b.admit(o, Limit); err != nil {
		return nil, err
	}
	trades := b.sweep(o, true)
	// taker 没吃完：挂单入簿（变成 maker）
	if o.Qty > 0 {
		b.rest(o)
	}
	return trades, nil
}

// PlaceMarket 市价单：不看价格一直吃到成交完或者对手盘空为止
// 剩余部分直接丢弃，不挂单；剩余数量留在 o.Qty 里
func (b *OrderBook) PlaceMarket(o *Order) ([]Trade, error) {
	if err := b.admit(o, Market); err != nil {
		return nil, err
	}
	return b.sweep(o, false), nil
}

func (b *OrderBook) admit(o *Order, want OrderType) error {
	if err := b.Validate(o); err != nil {
		return err
	}
	if o.Kind.Type != want {
		return fmt.Errorf("%w: expected %s order, got %s", ErrInvalidOrder, want, o.Kind.Type)
	}
	// 活跃订单的 id 不能重复
	if _, exists := b.byID[o.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateOrder, o.ID)
	}
	b.seq++
	o.Seq = b.seq
	return nil
}

func (b *OrderBook) sweep(taker *Order, checkPrice bool) []Trade {
	opp := b.sideOf(taker.Side.Opposite())
	limit, _ := taker.Kind.LimitPrice()

	trades := make([]Trade, 0, 8)
	for taker.Qty > 0 {
		bestP, ok := opp.best()
		if !ok {
			break
		}
		if checkPrice && !crosses(taker.Side, limit, bestP) {
			break
		}
		lv := opp.levels[bestP]
		// 开始吃单，从头部（最早的）开始
		for taker.Qty > 0 && !lv.empty() {
			h := lv.head
			mn := b.arena.at(h)
			exec := min(taker.Qty, mn.order.Qty)

			taker.Qty -= exec
			lv.fill(mn, exec)
			trades = append(trades, b.trade(taker, &mn.order, lv.price, exec))

			// maker 被吃完了：摘链 删除索引
			if mn.order.Qty == 0 {
				makerID := mn.order.ID
				lv.remove(&b.arena, h)
				delete(b.byID, makerID)
				b.arena.release(h)
			}
		}
		if lv.empty() {
			opp.dropLevel(lv.price)
		}
	}
	return trades
}

func crosses(side Side, limit, bestOpp int64) bool {
	if side == Buy {
		return limit >= bestOpp
	}
	return limit <= bestOpp
}

func (b *OrderBook) trade(taker, maker *Order, price, qty int64) Trade {
	t := Trade{
		Qty:            qty,
		Price:          price,
		Timestamp:      b.now(),
		TakerSide:      taker.Side,
		MakerRemaining: maker.Qty,
	}
	if taker.Side == Buy {
		t.BuyOrderID, t.SellOrderID = taker.ID, maker.ID
	} else {
		t.BuyOrderID, t.SellOrderID = maker.ID, taker.ID
	}
	return t
}

func (b *OrderBook) rest(o *Order) {
	price, _ := o.Kind.LimitPrice()
	lv := b.sideOf(o.Side).level(price)
	h := b.arena.alloc(*o)
	lv.pushBack(&b.arena, h)
	b.byID[o.ID] = h
}

// Cancel 撤单
// - 通过 byID O(1) 定位到 slot
// - 通过 prev/next O(1) 摘链
// 找不到返回 false（NotFound），不是错误
func (b *OrderBook) Cancel(orderID uint64) (Order, bool) {
	h, ok := b.byID[orderID]
	if !ok {
		return Order{}, false
	}
	n := b.arena.at(h)
	o := n.order
	price, _ := o.Kind.LimitPrice()
	side := b.sideOf(o.Side)
	lv := side.levels[price]
	if lv == nil {
		invariant("OrderBook.Cancel", "order %d points at missing %s level %d", orderID, o.Side, price)
	}
	lv.remove(&b.arena, h)
	if lv.empty() {
		side.dropLevel(price)
	}
	delete(b.byID, orderID)
	b.arena.release(h)
	return o, true
}

// BestBid 返回当前最优买价（最高价）
func (b *OrderBook) BestBid() (int64, bool) { return b.bids.best() }

// BestAsk 返回当前最优卖价（最低价）
func (b *OrderBook) BestAsk() (int64, bool) { return b.asks.best() }

// Spread 任意一侧为空时不可用
func (b *OrderBook) Spread() (int64, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return 0, false
	}
	return ask - bid, true
}

func (b *OrderBook) Snapshot() Snapshot {
	return Snapshot{Bids: b.bids.view(), Asks: b.asks.view()}
}

// Order 查一笔挂单的当前状态
func (b *OrderBook) Order(orderID uint64) (Order, bool) {
	h, ok := b.byID[orderID]
	if !ok {
		return Order{}, false
	}
	return b.arena.at(h).order, true
}

func (b *OrderBook) Has(orderID uint64) bool {
	_, ok := b.byID[orderID]
	return ok
}

// Len 挂单数量
func (b *OrderBook) Len() int { return len(b.byID) }

// Depth 两侧价位数量
func (b *OrderBook) Depth() (bids, asks int) { return len(b.bids.levels), len(b.asks.levels) }

func (b *OrderBook) sideOf(s Side) *bookSide {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// CheckInvariants 完整走一遍结构，返回第一个发现的问题
func (b *OrderBook) CheckInvariants() error {
	seen := 0
	for _, side := range []*bookSide{b.bids, b.asks} {
		for price, lv := range side.levels {
			if lv.price != price {
				return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("level keyed %d has price %d", price, lv.price)}
			}
			if lv.empty() {
				return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("empty %s level %d kept", side.side, price)}
			}
			if _, ok := side.queued[price]; !ok {
				return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("%s level %d missing from price heap", side.side, price)}
			}
			var (
				sum   int64
				count int
				prev  = nilSlot
				lastS uint64
			)
			for h := lv.head; h != nilSlot; {
				if h < 0 || int(h) >= len(b.arena.slots) || !b.arena.slots[h].used {
					return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("dangling slot %d at level %d", h, price)}
				}
				n := &b.arena.slots[h]
				o := n.order
				if n.prev != prev {
					return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("order %d prev link broken", o.ID)}
				}
				if o.Qty <= 0 {
					return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("resting order %d has qty %d", o.ID, o.Qty)}
				}
				if p, _ := o.Kind.LimitPrice(); p != price || o.Side != side.side {
					return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("order %d sits on wrong level", o.ID)}
				}
				if idx, ok := b.byID[o.ID]; !ok || idx != h {
					return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("order %d not indexed", o.ID)}
				}
				if count > 0 && o.Seq <= lastS {
					return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("order %d breaks FIFO at level %d", o.ID, price)}
				}
				lastS = o.Seq
				sum += o.Qty
				count++
				prev = h
				h = n.next
			}
			if lv.tail != prev {
				return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("level %d tail mismatch", price)}
			}
			if sum != lv.volume || count != lv.count {
				return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("level %d volume %d/%d count %d/%d", price, lv.volume, sum, lv.count, count)}
			}
			seen += count
		}
	}
	if seen != len(b.byID) {
		return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("index has %d orders, levels hold %d", len(b.byID), seen)}
	}
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if okB && okA && bid >= ask {
		return &InvariantError{Op: "CheckInvariants", Detail: fmt.Sprintf("crossed book bid=%d ask=%d", bid, ask)}
	}
	return nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

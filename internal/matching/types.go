package matching

import (
	"fmt"
	"time"
)

// 定义数据结构

// Side 买卖方向
type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

// Opposite 对手方
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("matching: bad side %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSide 兼容大小写的 "BUY"/"SELL"
func ParseSide(v string) (Side, error) {
	switch v {
	case "BUY", "buy", "Buy":
		return Buy, nil
	case "SELL", "sell", "Sell":
		return Sell, nil
	}
	return 0, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, v)
}

// OrderType 订单类型
type OrderType uint8

const (
	Limit OrderType = iota + 1
	Market
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	default:
		return fmt.Sprintf("OrderType(%d)", uint8(t))
	}
}

// OrderKind = Limit(price) | Market
// 市价单不带价格，也不使用任何哨兵价格
type OrderKind struct {
	Type  OrderType
	price int64
}

// LimitAt 限价单
func LimitAt(price int64) OrderKind { return OrderKind{Type: Limit, price: price} }

// AtMarket 市价单
func AtMarket() OrderKind { return OrderKind{Type: Market} }

func (k OrderKind) IsMarket() bool { return k.Type == Market }

// LimitPrice 只有限价单才有价格
func (k OrderKind) LimitPrice() (int64, bool) {
	if k.Type != Limit {
		return 0, false
	}
	return k.price, true
}

func (k OrderKind) String() string {
	if k.Type == Limit {
		return fmt.Sprintf("LIMIT(%d)", k.price)
	}
	return k.Type.String()
}

// Order 一笔订单
// ID/Side/Kind 创建后不变；Qty 是剩余数量，只有订单簿在撮合/撤单时修改
type Order struct {
	ID       uint64
	Side     Side
	Kind     OrderKind
	Qty      int64
	ClientID string // 下单方标识，只用于成交通知，不参与优先级
	Seq      uint64 // 到达序号，由订单簿分配，只用于同价位 FIFO
}

func NewLimitOrder(id uint64, side Side, qty, price int64) *Order {
	return &Order{ID: id, Side: side, Kind: LimitAt(price), Qty: qty}
}

func NewMarketOrder(id uint64, side Side, qty int64) *Order {
	return &Order{ID: id, Side: side, Kind: AtMarket(), Qty: qty}
}

func (o Order) String() string {
	return fmt.Sprintf("Order{id=%d, %s %s, qty=%d, seq=%d}", o.ID, o.Kind, o.Side, o.Qty, o.Seq)
}

// Trade 成交记录，撮合的副产品，创建后不再修改
// Price 永远是挂单（maker）的价格
type Trade struct {
	BuyOrderID  uint64    `json:"buyOrderId"`
	SellOrderID uint64    `json:"sellOrderId"`
	Qty         int64     `json:"quantity"`
	Price       int64     `json:"price"`
	Timestamp   time.Time `json:"timestamp"`

	TakerSide      Side  `json:"takerSide"`      // 主动方
	MakerRemaining int64 `json:"makerRemaining"` // 这笔成交后挂单剩余，0 表示挂单已完全成交
}

func (t Trade) TakerID() uint64 {
	if t.TakerSide == Buy {
		return t.BuyOrderID
	}
	return t.SellOrderID
}

func (t Trade) MakerID() uint64 {
	if t.TakerSide == Buy {
		return t.SellOrderID
	}
	return t.BuyOrderID
}

func (t Trade) String() string {
	return fmt.Sprintf("Trade{buy=%d, sell=%d, qty=%d, price=%d, ts=%d}",
		t.BuyOrderID, t.SellOrderID, t.Qty, t.Price, t.Timestamp.UnixMilli())
}

// Status 一次下单的结果状态
type Status uint8

const (
	StatusResting Status = iota + 1 // 剩余部分挂入订单簿
	StatusFilled                    // 全部成交
	StatusExpired                   // 市价单剩余部分被丢弃
)

func (s Status) String() string {
	switch s {
	case StatusResting:
		return "RESTING"
	case StatusFilled:
		return "FILLED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Result 一次下单的完整结果
// 市价单没成交完的部分放在 Remaining 里，Status=EXPIRED，不会挂单
type Result struct {
	OrderID   uint64  `json:"orderId"`
	Trades    []Trade `json:"trades"`
	Filled    int64   `json:"filled"`
	Remaining int64   `json:"remaining"`
	Status    Status  `json:"status"`
}

// LevelView 快照里的一档
type LevelView struct {
	Price  int64 `json:"price"`
	Volume int64 `json:"volume"`
	Orders int   `json:"orders"`
}

// Snapshot 某一时刻的盘口，bids 从高到低，asks 从低到高
type Snapshot struct {
	Bids []LevelView `json:"bids"`
	Asks []LevelView `json:"asks"`
}

// Quote 价格查询，Has* 为 false 表示不可用
type Quote struct {
	BestBid   int64
	BestAsk   int64
	Spread    int64
	LastPrice int64

	HasBid    bool
	HasAsk    bool
	HasSpread bool
	HasLast   bool
}

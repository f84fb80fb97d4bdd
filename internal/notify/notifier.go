package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/encoding/json"
	"jasdaq.com/internal/broadcast"
	"jasdaq.com/internal/engine"
	"jasdaq.com/internal/matching"
)

const (
	RoleBuyer  = "BUYER"
	RoleSeller = "SELLER"
)

// TradeNotice 成交后发给下单方的通知
type TradeNotice struct {
	Role                string `json:"role"` // BUYER | SELLER
	Symbol              string `json:"symbol"`
	OrderID             uint64 `json:"orderId"`
	CounterpartyOrderID uint64 `json:"counterpartyOrderId"`
	Shares              int64  `json:"shares"`
	Price               int64  `json:"price"`
	Seq                 uint64 `json:"seq"`
	Text                string `json:"text"`
}

type orderKey struct {
	symbol string
	id     uint64
}

// Notifier 记录 订单 -> 客户端，成交时分别通知买卖双方
// 订单进入终态（全部成交、市价剩余作废、撤单）后移除映射
type Notifier struct {
	b Publisher

	mu     sync.Mutex
	owners map[orderKey]string
}

// Publisher 只需要发布能力，broadcast.Broker 满足
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

func NewNotifier(b Publisher) *Notifier {
	return &Notifier{b: b, owners: make(map[orderKey]string, 1024)}
}

func (n *Notifier) Name() string { return "notify" }

func (n *Notifier) Register(symbol string, orderID uint64, clientID string) {
	n.mu.Lock()
	n.owners[orderKey{symbol, orderID}] = clientID
	n.mu.Unlock()
}

func (n *Notifier) Unregister(symbol string, orderID uint64) {
	n.mu.Lock()
	delete(n.owners, orderKey{symbol, orderID})
	n.mu.Unlock()
}

// Owner 订单对应的客户端
func (n *Notifier) Owner(symbol string, orderID uint64) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.owners[orderKey{symbol, orderID}]
	return c, ok
}

func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.owners)
}

func (n *Notifier) Handle(ctx context.Context, ev engine.Event) error {
	switch ev.Type {
	case engine.EvAccepted:
		if ev.ClientID != "" {
			n.Register(ev.Symbol, ev.OrderID, ev.ClientID)
		}
	case engine.EvTrade:
		err := n.notifyTrade(ctx, ev)
		if ev.MakerRemaining == 0 {
			maker := ev.SellOrderID
			if ev.Side == matching.Sell {
				maker = ev.BuyOrderID
			}
			n.Unregister(ev.Symbol, maker)
		}
		return err
	case engine.EvFilled, engine.EvExpired, engine.EvCanceled:
		n.Unregister(ev.Symbol, ev.OrderID)
	}
	return nil
}

func (n *Notifier) notifyTrade(ctx context.Context, ev engine.Event) error {
	buyer, hasBuyer := n.Owner(ev.Symbol, ev.BuyOrderID)
	seller, hasSeller := n.Owner(ev.Symbol, ev.SellOrderID)

	var errs []error
	if hasBuyer {
		errs = append(errs, n.send(ctx, buyer, notice(ev, RoleBuyer)))
	}
	if hasSeller {
		errs = append(errs, n.send(ctx, seller, notice(ev, RoleSeller)))
	}
	return errors.Join(errs...)
}

func (n *Notifier) send(ctx context.Context, clientID string, tn TradeNotice) error {
	topic := broadcast.NotifyTopic(clientID)
	b, err := json.Marshal(broadcast.ServerMsg{Type: "notify", Topic: topic, Data: tn})
	if err != nil {
		return err
	}
	return n.b.Publish(ctx, topic, b)
}

func notice(ev engine.Event, role string) TradeNotice {
	own, other := ev.BuyOrderID, ev.SellOrderID
	if role == RoleSeller {
		own, other = other, own
	}
	return TradeNotice{
		Role:                role,
		Symbol:              ev.Symbol,
		OrderID:             own,
		CounterpartyOrderID: other,
		Shares:              ev.Qty,
		Price:               ev.Price,
		Seq:                 ev.Seq,
		Text: fmt.Sprintf("Trade Notification - Role: %s, Shares: %d, Price: %d, Counterparty Order ID: %d",
			role, ev.Qty, ev.Price, other),
	}
}

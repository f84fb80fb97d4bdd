package engine

import (
	"errors"

	"jasdaq.com/internal/matching"
)

// 定义命令类型
type CmdType uint8

const (
	CmdPlace  CmdType = iota + 1 // 下单（限价/市价）
	CmdCancel                    // 撤单
)

// Command 投递到 SymbolActor 邮箱的命令
type Command struct {
	Type     CmdType
	ReqID    uint64
	Order    matching.Order // CmdPlace
	CancelID uint64         // CmdCancel

	reply chan Reply
}

// Reply actor 处理完命令后的回执
type Reply struct {
	Result   matching.Result // CmdPlace
	Canceled bool            // CmdCancel：false 表示订单不存在
	Order    matching.Order  // CmdCancel：被撤掉的订单
	Err      error
}

type EventType uint8

const (
	EvAccepted EventType = iota + 1 // 校验通过，开始撮合
	EvRejected                      // 校验失败
	EvTrade                         // 一笔成交
	EvRested                        // 剩余部分挂入订单簿
	EvFilled                        // taker 全部成交
	EvExpired                       // 市价单剩余部分丢弃
	EvCanceled                      // 撤单成功
)

// EvCmdEnd 命令边界标记，只出现在 journal 里，不会发布
const EvCmdEnd EventType = 250

func (t EventType) String() string {
	switch t {
	case EvAccepted:
		return "ACCEPTED"
	case EvRejected:
		return "REJECTED"
	case EvTrade:
		return "TRADE"
	case EvRested:
		return "RESTED"
	case EvFilled:
		return "FILLED"
	case EvExpired:
		return "EXPIRED"
	case EvCanceled:
		return "CANCELED"
	case EvCmdEnd:
		return "CMD_END"
	}
	return "UNKNOWN"
}

// Event 撮合完成后对外发布的事实
// 同一个 symbol 内 Seq 单调递增（每条命令一个），Idx 是命令内的事件序号
type Event struct {
	Type   EventType `json:"type"`
	Symbol string    `json:"symbol"`
	Seq    uint64    `json:"seq"`
	Idx    uint16    `json:"idx"`
	ReqID  uint64    `json:"reqId"`

	OrderID  uint64        `json:"orderId,omitempty"`
	ClientID string        `json:"clientId,omitempty"`
	Side     matching.Side `json:"side,omitempty"`
	Price    int64         `json:"price,omitempty"` // 限价单价格 / 成交价
	Qty      int64         `json:"qty,omitempty"`   // 下单数量 / 成交数量 / 剩余数量

	// Trade 字段
	BuyOrderID     uint64 `json:"buyOrderId,omitempty"`
	SellOrderID    uint64 `json:"sellOrderId,omitempty"`
	MakerRemaining int64  `json:"makerRemaining,omitempty"`
	Ts             int64  `json:"ts,omitempty"` // unix nano

	Reason string `json:"reason,omitempty"`
}

// Trade 把成交事件还原成 matching.Trade
func (ev Event) Trade() matching.Trade {
	return matching.Trade{
		BuyOrderID:     ev.BuyOrderID,
		SellOrderID:    ev.SellOrderID,
		Qty:            ev.Qty,
		Price:          ev.Price,
		Timestamp:      unixNano(ev.Ts),
		TakerSide:      ev.Side,
		MakerRemaining: ev.MakerRemaining,
	}
}

// 定义错误
var (
	ErrEngineBusy = errors.New("engine busy: mailbox full")
	ErrUnknownSym = errors.New("unknown symbol")
	ErrBadCommand = errors.New("bad command")
	ErrStopped    = errors.New("engine stopped")
	ErrJournal    = errors.New("engine journal write failed, command applied")
	ErrBadSymbol  = errors.New("bad symbol")
)

type EvCodec interface {
	Encode(dst []byte, ev Event) ([]byte, error)
	Decode(payload []byte) (Event, error)
}

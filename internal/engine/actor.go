package engine

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"jasdaq.com/internal/matching"
	"jasdaq.com/pkg/logger"
	"jasdaq.com/pkg/metrics"
)

type ActorConfig struct {
	MailboxSize int // 邮箱容量，满了直接拒绝
	BatchMax    int // 一轮最多处理多少条命令
	Debug       bool // 每条命令后完整校验一遍订单簿，坏了直接 panic
}

// SymbolActor 一个标的的唯一写入者
// 所有改变订单簿的命令都通过邮箱串行执行；读请求直接走 MatchingEngine（它自己有锁）
type SymbolActor struct {
	symbol string
	me     *matching.MatchingEngine
	in     chan Command
	cfg    ActorConfig
	now    func() time.Time

	seq         atomic.Uint64 // 命令序号，每条命令 +1
	mailboxFull atomic.Uint64

	outbox    Outbox
	pubNotify chan struct{} // buffered=1，flush 之后踢一脚 publisher
	done      chan struct{}

	check func() error // Debug 时为 me.CheckInvariants
}

func NewSymbolActor(symbol string, me *matching.MatchingEngine, cfg ActorConfig, ob Outbox, pubNotify chan struct{}) *SymbolActor {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 4096
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 256
	}
	if pubNotify == nil {
		pubNotify = make(chan struct{}, 1)
	}
	a := &SymbolActor{
		symbol:    symbol,
		me:        me,
		in:        make(chan Command, cfg.MailboxSize),
		cfg:       cfg,
		now:       time.Now,
		outbox:    ob,
		pubNotify: pubNotify,
		done:      make(chan struct{}),
	}
	if cfg.Debug {
		a.check = me.CheckInvariants
	}
	return a
}

// TryEnqueue 邮箱满了直接返回 ErrEngineBusy，不阻塞调用方
func (a *SymbolActor) TryEnqueue(cmd Command) error {
	select {
	case <-a.done:
		return ErrStopped
	default:
	}
	select {
	case a.in <- cmd:
		return nil
	default:
		a.mailboxFull.Add(1)
		metrics.MailboxRejectTotal.WithLabelValues(a.symbol).Inc()
		return ErrEngineBusy
	}
}

func (a *SymbolActor) Symbol() string                  { return a.symbol }
func (a *SymbolActor) Engine() *matching.MatchingEngine { return a.me }
func (a *SymbolActor) Seq() uint64                     { return a.seq.Load() }
func (a *SymbolActor) MailboxFull() uint64             { return a.mailboxFull.Load() }
func (a *SymbolActor) Done() <-chan struct{}           { return a.done }

type pendingReply struct {
	ch chan Reply
	r  Reply
}

func (a *SymbolActor) Run(ctx context.Context) {
	defer close(a.done)
	defer func() {
		if err := a.outbox.Close(); err != nil {
			logger.Error(ctx, "close outbox failed", zap.String("symbol", a.symbol), zap.Error(err))
		}
	}()

	// 复用 batch slice，避免每轮分配
	batch := make([]Command, 0, a.cfg.BatchMax)
	replies := make([]pendingReply, 0, a.cfg.BatchMax)
	for {
		// 先阻塞拿 1 条，再不阻塞尽量多拿几条
		select {
		case <-ctx.Done():
			return
		case first := <-a.in:
			batch = append(batch[:0], first)
		}
	drain:
		for len(batch) < a.cfg.BatchMax {
			select {
			case cmd := <-a.in:
				batch = append(batch, cmd)
			default:
				break drain
			}
		}

		replies = replies[:0]
		for i := range batch {
			seq := a.seq.Add(1)
			em := &emitter{out: a.outbox, symbol: a.symbol, seq: seq, req: batch[i].ReqID}
			r := a.apply(&batch[i], em)
			if a.check != nil {
				a.verify(ctx, seq)
			}
			if em.err == nil {
				em.err = a.outbox.AppendCmdEnd(seq)
			}
			if batch[i].reply != nil {
				replies = append(replies, pendingReply{ch: batch[i].reply, r: r})
			}
			if em.err != nil {
				// journal 写不进去：停止 actor，后续请求拿到 ErrStopped
				logger.Error(ctx, "append event failed, stopping actor",
					zap.String("symbol", a.symbol), zap.Uint64("seq", seq), zap.Error(em.err))
				a.replyAll(withJournalErr(replies, em.err))
				return
			}
		}

		// batch 末尾 flush 一次（组提交），之后才回复调用方
		if err := a.outbox.Flush(); err != nil {
			logger.Error(ctx, "flush outbox failed, stopping actor", zap.String("symbol", a.symbol), zap.Error(err))
			a.replyAll(withJournalErr(replies, err))
			return
		}
		select {
		case a.pubNotify <- struct{}{}:
		default:
		}
		a.replyAll(replies)
	}
}

// withJournalErr 命令已经改了订单簿，只是事件没落盘：结果照给，Err 标成 ErrJournal
func withJournalErr(replies []pendingReply, cause error) []pendingReply {
	err := fmt.Errorf("%w: %v", ErrJournal, cause)
	for i := range replies {
		if replies[i].r.Err == nil {
			replies[i].r.Err = err
		}
	}
	return replies
}

func (a *SymbolActor) verify(ctx context.Context, seq uint64) {
	if err := a.check(); err != nil {
		logger.Error(ctx, "order book corrupted", zap.String("symbol", a.symbol), zap.Uint64("seq", seq), zap.Error(err))
		panic(err)
	}
}

func (a *SymbolActor) replyAll(replies []pendingReply) {
	for _, p := range replies {
		p.ch <- p.r // cap=1，不会阻塞
	}
}

func (a *SymbolActor) apply(cmd *Command, em *emitter) Reply {
	start := a.now()
	defer func() {
		metrics.MatchDuration.WithLabelValues(a.symbol).Observe(a.now().Sub(start).Seconds())
	}()

	switch cmd.Type {
	case CmdPlace:
		return a.place(cmd, em)
	case CmdCancel:
		o, ok := a.me.CancelOrder(cmd.CancelID)
		if !ok {
			metrics.CancelsTotal.WithLabelValues(a.symbol, "not_found").Inc()
			return Reply{}
		}
		metrics.CancelsTotal.WithLabelValues(a.symbol, "canceled").Inc()
		em.canceled(o)
		return Reply{Canceled: true, Order: o}
	default:
		return Reply{Err: ErrBadCommand}
	}
}

func (a *SymbolActor) place(cmd *Command, em *emitter) Reply {
	o := cmd.Order
	typ := o.Kind.Type.String()
	orig := o // 撮合会改 Qty，事件里要原始数量

	res, err := a.me.Place(&o)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(a.symbol, typ, "rejected").Inc()
		em.rejected(orig, err)
		return Reply{Err: err}
	}

	em.accepted(orig)
	var vol int64
	for _, t := range res.Trades {
		em.trade(t)
		vol += t.Qty
	}
	switch res.Status {
	case matching.StatusResting:
		em.rested(o)
	case matching.StatusFilled:
		em.filled(o)
	case matching.StatusExpired:
		em.expired(o, res.Remaining)
	}

	metrics.OrdersTotal.WithLabelValues(a.symbol, typ, strings.ToLower(res.Status.String())).Inc()
	if n := len(res.Trades); n > 0 {
		metrics.TradesTotal.WithLabelValues(a.symbol).Add(float64(n))
		metrics.TradedVolume.WithLabelValues(a.symbol).Add(float64(vol))
	}
	return Reply{Result: res}
}

// emitter 把一条命令的结果翻译成事件，写进 outbox
type emitter struct {
	out    Outbox
	symbol string
	seq    uint64
	req    uint64
	idx    uint16
	err    error
}

func (e *emitter) emit(ev Event) {
	if e.err != nil {
		return
	}
	ev.Symbol, ev.Seq, ev.ReqID, ev.Idx = e.symbol, e.seq, e.req, e.idx
	e.idx++
	e.err = e.out.Append(ev)
}

func (e *emitter) accepted(o matching.Order) {
	price, _ := o.Kind.LimitPrice()
	e.emit(Event{Type: EvAccepted, OrderID: o.ID, ClientID: o.ClientID, Side: o.Side, Price: price, Qty: o.Qty})
}

func (e *emitter) rejected(o matching.Order, err error) {
	side := o.Side
	if !side.Valid() {
		side = 0 // 非法方向编码不出来
	}
	e.emit(Event{Type: EvRejected, OrderID: o.ID, ClientID: o.ClientID, Side: side, Qty: o.Qty, Reason: err.Error()})
}

func (e *emitter) trade(t matching.Trade) {
	e.emit(Event{
		Type:           EvTrade,
		OrderID:        t.TakerID(),
		Side:           t.TakerSide,
		Price:          t.Price,
		Qty:            t.Qty,
		BuyOrderID:     t.BuyOrderID,
		SellOrderID:    t.SellOrderID,
		MakerRemaining: t.MakerRemaining,
		Ts:             t.Timestamp.UnixNano(),
	})
}

func (e *emitter) rested(o matching.Order) {
	price, _ := o.Kind.LimitPrice()
	e.emit(Event{Type: EvRested, OrderID: o.ID, ClientID: o.ClientID, Side: o.Side, Price: price, Qty: o.Qty})
}

func (e *emitter) filled(o matching.Order) {
	e.emit(Event{Type: EvFilled, OrderID: o.ID, ClientID: o.ClientID, Side: o.Side})
}

func (e *emitter) expired(o matching.Order, remaining int64) {
	e.emit(Event{Type: EvExpired, OrderID: o.ID, ClientID: o.ClientID, Side: o.Side, Qty: remaining})
}

func (e *emitter) canceled(o matching.Order) {
	price, _ := o.Kind.LimitPrice()
	e.emit(Event{Type: EvCanceled, OrderID: o.ID, ClientID: o.ClientID, Side: o.Side, Price: price, Qty: o.Qty})
}

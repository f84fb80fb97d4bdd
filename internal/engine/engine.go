package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"jasdaq.com/internal/matching"
	"jasdaq.com/pkg/logger"
	"jasdaq.com/pkg/safe"
)

// BookFactory 为新标的创建撮合引擎，测试里用来注入时钟
type BookFactory func(symbol string) *matching.MatchingEngine

type JournalConfig struct {
	Enabled bool
	Dir     string
	BufSize int
	Poll    time.Duration
	Codec   EvCodec
}

type EngineConfig struct {
	Symbols             []string // 启动时就创建
	AllowDynamicSymbols bool     // 未配置的标的第一次下单时懒创建
	ActorCfg            ActorConfig
	BusSize             int
	Journal             JournalConfig
	BookFactory         BookFactory
}

// MaxSymbolLen 和 trades.symbol 列宽一致
const MaxSymbolLen = 16

// Engine 标的注册表：symbol -> SymbolActor
// 由服务启动时创建一次，显式传给 handler，不使用全局变量
type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	actors map[string]*SymbolActor
	bus    *ChanBus
	cfg    EngineConfig
	reqID  atomic.Uint64
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.BookFactory == nil {
		cfg.BookFactory = func(string) *matching.MatchingEngine { return matching.NewMatchingEngine() }
	}
	if cfg.Journal.Enabled {
		if cfg.Journal.Dir == "" {
			return nil, fmt.Errorf("engine: journal enabled but dir is empty")
		}
		if cfg.Journal.Codec == nil {
			cfg.Journal.Codec = BinaryEvCodec{}
		}
		if err := os.MkdirAll(cfg.Journal.Dir, 0o755); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ctx:    ctx,
		cancel: cancel,
		actors: make(map[string]*SymbolActor, len(cfg.Symbols)),
		bus:    NewChanBus(cfg.BusSize),
		cfg:    cfg,
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sym := range cfg.Symbols {
		if _, ok := e.actors[sym]; ok || sym == "" {
			continue
		}
		if len(sym) > MaxSymbolLen {
			e.cancel()
			e.wg.Wait()
			return nil, fmt.Errorf("engine: %w: %q longer than %d bytes", ErrBadSymbol, sym, MaxSymbolLen)
		}
		if _, err := e.createLocked(sym); err != nil {
			e.cancel()
			e.wg.Wait()
			return nil, err
		}
	}
	return e, nil
}

// Events 所有标的的事件流
func (e *Engine) Events() <-chan Event { return e.bus.C() }

func (e *Engine) DroppedEvents() uint64 { return e.bus.Dropped() }

// Symbols 当前已创建的标的，按字母序
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	out := make([]string, 0, len(e.actors))
	for s := range e.actors {
		out = append(out, s)
	}
	e.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Lookup 只查不建，读请求用
func (e *Engine) Lookup(symbol string) (*SymbolActor, error) {
	e.mu.RLock()
	a := e.actors[symbol]
	e.mu.RUnlock()
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSym, symbol)
	}
	return a, nil
}

func (e *Engine) getOrCreateActor(symbol string) (*SymbolActor, error) {
	// 快路径：读锁查
	e.mu.RLock()
	a := e.actors[symbol]
	e.mu.RUnlock()
	if a != nil {
		return a, nil
	}
	if !e.cfg.AllowDynamicSymbols || symbol == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSym, symbol)
	}
	if len(symbol) > MaxSymbolLen {
		return nil, fmt.Errorf("%w: longer than %d bytes", ErrBadSymbol, MaxSymbolLen)
	}

	// 慢路径：写锁双检 + 创建
	e.mu.Lock()
	defer e.mu.Unlock()
	if a = e.actors[symbol]; a != nil {
		return a, nil
	}
	return e.createLocked(symbol)
}

func (e *Engine) createLocked(symbol string) (*SymbolActor, error) {
	if e.ctx.Err() != nil {
		return nil, ErrStopped
	}
	var (
		ob        Outbox = busOutbox{bus: e.bus}
		pubNotify        = make(chan struct{}, 1)
		startSeq  uint64
	)

	jc := e.cfg.Journal
	if jc.Enabled {
		evPath := outboxWalPath(jc.Dir, symbol)
		// 上次崩溃留下的半条命令先截掉
		last, _, err := ScanAndRepairOutbox(evPath, jc.Codec)
		if err != nil {
			return nil, fmt.Errorf("engine: repair journal %s: %w", evPath, err)
		}
		eo, err := OpenEventOutbox(evPath, jc.BufSize, jc.Codec)
		if err != nil {
			return nil, err
		}
		ob, startSeq = eo, last

		pub := NewOutboxPublisher(e.ctx, e.bus, evPath, outboxCursorPath(jc.Dir, symbol), pubNotify, jc.Poll, jc.Codec)
		e.wg.Add(1)
		safe.Go(func() {
			defer e.wg.Done()
			pub.Run()
		})
	}

	a := NewSymbolActor(symbol, e.cfg.BookFactory(symbol), e.cfg.ActorCfg, ob, pubNotify)
	// 重启后 seq 接着 journal 往下走；订单簿本身不恢复
	a.seq.Store(startSeq)
	e.actors[symbol] = a

	// 不用 safe.Go：订单簿结构损坏的 panic 必须让进程退出
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		a.Run(e.ctx)
	}()

	logger.Info(e.ctx, "symbol actor started", zap.String("symbol", symbol), zap.Uint64("seq", startSeq))
	return a, nil
}

// Place 下单并等待撮合结果
// ctx 超时只是调用方不再等待，命令一旦入队仍会被执行
func (e *Engine) Place(ctx context.Context, symbol string, o matching.Order) (matching.Result, error) {
	r, err := e.submit(ctx, symbol, Command{Type: CmdPlace, Order: o})
	if err != nil {
		return matching.Result{}, err
	}
	return r.Result, r.Err
}

// Cancel 撤单；订单不存在返回 ok=false，不是错误
func (e *Engine) Cancel(ctx context.Context, symbol string, orderID uint64) (matching.Order, bool, error) {
	r, err := e.submit(ctx, symbol, Command{Type: CmdCancel, CancelID: orderID})
	if err != nil {
		return matching.Order{}, false, err
	}
	return r.Order, r.Canceled, r.Err
}

// TrySubmit 只入队不等待，结果通过事件流返回
func (e *Engine) TrySubmit(symbol string, cmd Command) error {
	if cmd.Type != CmdPlace && cmd.Type != CmdCancel {
		return ErrBadCommand
	}
	a, err := e.getOrCreateActor(symbol)
	if err != nil {
		return err
	}
	cmd.ReqID = e.reqID.Add(1)
	cmd.reply = nil
	return a.TryEnqueue(cmd)
}

func (e *Engine) submit(ctx context.Context, symbol string, cmd Command) (Reply, error) {
	a, err := e.getOrCreateActor(symbol)
	if err != nil {
		return Reply{}, err
	}
	cmd.ReqID = e.reqID.Add(1)
	cmd.reply = make(chan Reply, 1)
	if err := a.TryEnqueue(cmd); err != nil {
		return Reply{}, err
	}
	select {
	case r := <-cmd.reply:
		return r, nil
	case <-a.Done():
		return Reply{}, ErrStopped
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Snapshot 读请求直接走 MatchingEngine
func (e *Engine) Snapshot(symbol string) (matching.Snapshot, error) {
	a, err := e.Lookup(symbol)
	if err != nil {
		return matching.Snapshot{}, err
	}
	return a.Engine().Snapshot(), nil
}

func (e *Engine) Quote(symbol string) (matching.Quote, error) {
	a, err := e.Lookup(symbol)
	if err != nil {
		return matching.Quote{}, err
	}
	return a.Engine().Quote(), nil
}

func (e *Engine) TradeHistory(symbol string) ([]matching.Trade, error) {
	a, err := e.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	return a.Engine().TradeHistory(), nil
}

// Stop 停掉所有 actor 和 publisher，等 journal 关闭后返回
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

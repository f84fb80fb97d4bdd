package sink

import (
	"context"
	"time"

	"go.uber.org/zap"
	"jasdaq.com/internal/engine"
	"jasdaq.com/pkg/logger"
	"jasdaq.com/pkg/metrics"
)

// Sink 消费撮合事件的下游（落库、推送、行情缓存……）
// Handle 在 Dispatcher 的 goroutine 里按事件顺序调用，不会并发
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev engine.Event) error
}

// Func 把一个函数包装成 Sink，测试和简单场景用
type Func struct {
	N  string
	Fn func(ctx context.Context, ev engine.Event) error
}

func (f Func) Name() string { return f.N }
func (f Func) Handle(ctx context.Context, ev engine.Event) error {
	return f.Fn(ctx, ev)
}

// Dispatcher 从总线读事件，依次交给每个 sink
// 某个 sink 出错只记日志和指标，不影响其他 sink，也不回滚撮合结果
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
}

func NewDispatcher(timeout time.Duration, sinks ...Sink) *Dispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Dispatcher{sinks: sinks, timeout: timeout}
}

func (d *Dispatcher) Add(s ...Sink) { d.sinks = append(d.sinks, s...) }

func (d *Dispatcher) Sinks() []Sink { return d.sinks }

// Run 阻塞直到 ctx 结束或 in 被关闭
func (d *Dispatcher) Run(ctx context.Context, in <-chan engine.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev engine.Event) {
	for _, s := range d.sinks {
		hctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Handle(hctx, ev)
		cancel()
		if err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
			logger.Warn(ctx, "sink handle failed",
				zap.String("sink", s.Name()),
				zap.String("symbol", ev.Symbol),
				zap.Uint64("seq", ev.Seq),
				zap.Stringer("type", ev.Type),
				zap.Error(err),
			)
		}
	}
}

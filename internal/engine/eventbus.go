package engine

import (
	"context"
	"sync/atomic"

	"jasdaq.com/pkg/metrics"
)

// ChanBus 进程内事件总线：所有 symbol 的事件汇到一个 channel，由 Dispatcher 消费
type ChanBus struct {
	ch      chan Event
	dropped atomic.Uint64
}

func NewChanBus(size int) *ChanBus {
	if size <= 0 {
		size = 1 << 16
	}
	return &ChanBus{ch: make(chan Event, size)}
}

// TryPublish 不阻塞；总线满了直接丢并计数（撮合线程不能被下游拖慢）
func (b *ChanBus) TryPublish(ev Event) bool {
	select {
	case b.ch <- ev:
		return true
	default:
		b.dropped.Add(1)
		metrics.EventsDroppedTotal.Inc()
		return false
	}
}

// Publish 阻塞直到写入或 ctx 结束，给 OutboxPublisher 用
func (b *ChanBus) Publish(ctx context.Context, ev Event) error {
	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *ChanBus) C() <-chan Event { return b.ch }
func (b *ChanBus) Dropped() uint64 { return b.dropped.Load() }

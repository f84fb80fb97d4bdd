package broadcast

import (
	"context"
	"sync"

	"jasdaq.com/pkg/metrics"
)

type memSub struct {
	patterns []string
	ch       chan Message
}

type MemBroker struct {
	mu     sync.RWMutex
	subs   map[*memSub]struct{}
	bufLen int
}

func NewMemBroker() *MemBroker {
	return &MemBroker{subs: make(map[*memSub]struct{}), bufLen: 4096}
}

func (b *MemBroker) Publish(_ context.Context, topic string, payload []byte) error {
	msg := Message{Topic: topic, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	// fanout：at-most-once，慢订阅者直接丢
	for s := range b.subs {
		for _, p := range s.patterns {
			if !Match(p, topic) {
				continue
			}
			select {
			case s.ch <- msg:
			default:
				metrics.WsDroppedTotal.WithLabelValues("broker_full").Inc()
			}
			break
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	s := &memSub{patterns: append([]string(nil), topics...), ch: make(chan Message, b.bufLen)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	}()
	return s.ch, nil
}

// Len 当前订阅者个数
func (b *MemBroker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *MemBroker) Close() error { return nil }

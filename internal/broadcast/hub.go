package broadcast

import (
	"context"
	"strings"
	"sync"

	"jasdaq.com/pkg/metrics"
)

// Hub 本进程内的 ws 订阅表
// 每个 topic 记住最后一条 payload，新订阅者立刻收到一份
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Conn]struct{} // topic -> set(conn)
	last map[string][]byte             // topic -> last payload (snapshot)
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Conn]struct{}, 1024),
		last: make(map[string][]byte, 1024),
	}
}

func (h *Hub) Subscribe(c *Conn, topics []string) {
	metrics.WsSubOpsTotal.WithLabelValues("sub").Inc()

	// 订阅和取快照在同一把锁里，避免订阅后立刻 publish 却取不到
	h.mu.Lock()
	snaps := make([][]byte, 0, len(topics))
	for _, t := range topics {
		set := h.subs[t]
		if set == nil {
			set = make(map[*Conn]struct{}, 16)
			h.subs[t] = set
		}
		set[c] = struct{}{}
		if b := h.last[t]; b != nil {
			snaps = append(snaps, b)
		}
	}
	h.mu.Unlock()

	for _, b := range snaps {
		c.Offer(b)
	}
}

func (h *Hub) Unsubscribe(c *Conn, topics []string) {
	metrics.WsSubOpsTotal.WithLabelValues("unsub").Inc()
	h.mu.Lock()
	for _, t := range topics {
		if set := h.subs[t]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, t)
			}
		}
	}
	h.mu.Unlock()
}

func (h *Hub) RemoveConn(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, m := range h.subs {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Publish 广播给 topic 的所有订阅者
// 对每个 conn 都是非阻塞 Offer；慢客户端不会卡住广播
func (h *Hub) Publish(topic string, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	h.mu.Lock()
	// 私有通知不留快照，否则重连会收到旧通知
	if !strings.HasPrefix(topic, notifyPrefix) {
		h.last[topic] = cp
	}
	conns := make([]*Conn, 0, len(h.subs[topic]))
	for c := range h.subs[topic] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Offer(cp)
	}
}

// Subscribers topic 当前订阅数
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Forward 把 broker 上的消息转进本地 hub，直到 ctx 结束
func (h *Hub) Forward(ctx context.Context, b Broker, topics []string) error {
	ch, err := b.Subscribe(ctx, topics)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			h.Publish(m.Topic, m.Payload)
		}
	}
}

package broadcast

import (
	"sync/atomic"

	"github.com/gorilla/websocket"
	"jasdaq.com/pkg/metrics"
)

// Conn 一个 ws 客户端
// 成交推送不能合并，所以用有界队列；队列满了丢新消息并计数
type Conn struct {
	ws     *websocket.Conn
	hub    *Hub
	send   chan []byte
	closed atomic.Bool
	drops  atomic.Uint64

	lastPongUnix atomic.Int64 // time.Now().UnixNano()
}

func NewConn(h *Hub, ws *websocket.Conn, sendBuf int) *Conn {
	if sendBuf <= 0 {
		sendBuf = 1024
	}
	return &Conn{ws: ws, hub: h, send: make(chan []byte, sendBuf)}
}

// Offer 不阻塞，返回是否入队成功
func (c *Conn) Offer(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.drops.Add(1)
		metrics.WsDroppedTotal.WithLabelValues("slow_client").Inc()
		return false
	}
}

func (c *Conn) Dropped() uint64 { return c.drops.Load() }

// drain 第一条已经拿到，再不阻塞地最多凑 max 条
func (c *Conn) drain(first []byte, max int) [][]byte {
	out := [][]byte{first}
	for len(out) < max {
		select {
		case b := <-c.send:
			out = append(out, b)
		default:
			return out
		}
	}
	return out
}

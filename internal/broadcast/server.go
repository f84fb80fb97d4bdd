package broadcast

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"jasdaq.com/pkg/logger"
	"jasdaq.com/pkg/metrics"
	"jasdaq.com/pkg/safe"
)

const maxFlush = 256 // 单次最多写多少条，防止订阅 topic 极多时一次写爆

type Server struct {
	Hub      *Hub
	Upgrader websocket.Upgrader
	ctx      context.Context
	SendBuf  int // per-conn send chan size

	PongWait   time.Duration
	PingPeriod time.Duration
	PingJitter time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
}

func NewServer(ctx context.Context, h *Hub) *Server {
	return &Server{
		Hub: h,
		ctx: ctx,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: 按配置的前端域名校验 Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		SendBuf:    1024,
		PongWait:   60 * time.Second,
		PingPeriod: 30 * time.Second,
		PingJitter: 100 * time.Millisecond,
		WriteWait:  5 * time.Second,
		ReadLimit:  1 << 10,
	}
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(r.Context(), "ws upgrade failed", zap.Error(err))
		return
	}
	metrics.WsOnOpen()
	c := NewConn(s.Hub, wsConn, s.SendBuf)
	safe.Go(func() { s.writePump(c) })
	safe.Go(func() { s.readPump(c) })
}

func (s *Server) readPump(c *Conn) {
	code, reason := websocket.CloseNormalClosure, "eof"
	defer func() {
		c.closed.Store(true)
		c.hub.RemoveConn(c)
		_ = c.ws.Close()
		metrics.WsOnClose(code, reason)
	}()

	c.ws.SetReadLimit(s.ReadLimit)
	c.lastPongUnix.Store(time.Now().UnixNano())
	_ = c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	c.ws.SetPongHandler(func(string) error {
		metrics.WsPongRecvTotal.Inc()
		c.lastPongUnix.Store(time.Now().UnixNano())
		return c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	for {
		if s.ctx.Err() != nil {
			code, reason = websocket.CloseGoingAway, "shutdown"
			return
		}
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			var (
				ce *websocket.CloseError
				ne net.Error
			)
			switch {
			case errors.As(err, &ce):
				code, reason = ce.Code, "client_close"
			case errors.As(err, &ne) && ne.Timeout():
				code, reason = websocket.CloseAbnormalClosure, "pong_timeout"
			default:
				code, reason = websocket.CloseAbnormalClosure, "read_error"
			}
			return
		}
		var msg ClientMsg
		if json.Unmarshal(b, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "sub":
			// TODO: notify:<clientId> 目前谁都能订阅，接入登录后按身份校验 clientId
			c.hub.Subscribe(c, msg.Topics)
		case "unsub":
			c.hub.Unsubscribe(c, msg.Topics)
		}
	}
}

func (s *Server) writePump(c *Conn) {
	if s.PingJitter > 0 {
		t := time.NewTimer(time.Duration(rand.Int63n(int64(s.PingJitter))))
		select {
		case <-t.C:
		case <-s.ctx.Done():
			t.Stop()
			_ = c.ws.Close()
			return
		}
	}

	ticker := time.NewTicker(s.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case first := <-c.send:
			batch := c.drain(first, maxFlush)
			start := time.Now()
			n, err := s.writeBatch(c, batch)
			metrics.WsObserveWrite(len(batch), n, time.Since(start), err)
			if err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(s.WriteWait)); err != nil {
				metrics.WsPingErrorsTotal.Inc()
				return
			}
		case <-s.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(s.WriteWait))
			return
		}
	}
}

// writeBatch 一次 NextWriter 写完本批，多条 JSON 用换行分隔
func (s *Server) writeBatch(c *Conn, batch [][]byte) (int, error) {
	_ = c.ws.SetWriteDeadline(time.Now().Add(s.WriteWait))
	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		return 0, err
	}
	n := 0
	for i, payload := range batch {
		if i > 0 {
			if _, err := w.Write([]byte("\n")); err != nil {
				_ = w.Close()
				return n, err
			}
			n++
		}
		m, err := w.Write(payload)
		n += m
		if err != nil {
			_ = w.Close()
			return n, err
		}
	}
	return n, w.Close()
}

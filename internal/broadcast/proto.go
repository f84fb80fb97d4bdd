package broadcast

import (
	"time"

	"github.com/segmentio/encoding/json"
	"jasdaq.com/internal/engine"
	"jasdaq.com/internal/kline"
)

type ClientMsg struct {
	Type   string   `json:"type"`   // "sub" | "unsub"
	Topics []string `json:"topics"` // topic list
}

// TickDTO 一笔成交的推送，字段和成交接口一致
type TickDTO struct {
	Symbol    string `json:"symbol"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	TakerSide string `json:"takerSide"`
	Timestamp int64  `json:"timestamp"` // unix milli
}

type ServerMsg struct {
	Type  string      `json:"type"`  // "trade" | "kline" | "notify"
	Topic string      `json:"topic"` // e.g. trade:BTC-USDT
	Data  interface{} `json:"data"`
}

func TradeTopic(symbol string) string { return "trade:" + symbol }

func KlineTopic(tf, symbol string) string { return "kline:" + tf + ":" + symbol }

const notifyPrefix = "notify:"

func NotifyTopic(clientID string) string { return notifyPrefix + clientID }

func EncodeTrade(ev engine.Event) (string, []byte, error) {
	topic := TradeTopic(ev.Symbol)
	b, err := json.Marshal(ServerMsg{
		Type:  "trade",
		Topic: topic,
		Data: TickDTO{
			Symbol:    ev.Symbol,
			Price:     ev.Price,
			Quantity:  ev.Qty,
			TakerSide: ev.Side.String(),
			Timestamp: time.Unix(0, ev.Ts).UnixMilli(),
		},
	})
	return topic, b, err
}

func EncodeBar(b kline.Bar) (string, []byte, error) {
	topic := KlineTopic(b.TF, b.Symbol)
	buf, err := json.Marshal(ServerMsg{Type: "kline", Topic: topic, Data: b})
	return topic, buf, err
}

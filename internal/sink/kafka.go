package sink

import (
	"context"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"jasdaq.com/internal/engine"
	"jasdaq.com/pkg/logger"
	"jasdaq.com/pkg/metrics"
)

// 同步模式下每笔成交最多等 BatchTimeout，Dispatcher 是串行的，吞吐上限约 1/BatchTimeout 笔每秒
// Async 时 WriteMessages 立即返回，失败走 Completion 记日志和计数，熔断器看不到这些错误
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	BatchSize    int
	Async        bool
}

// TradeMessage 成交消息，kafka 的 value
type TradeMessage struct {
	Symbol      string `json:"symbol"`
	Seq         uint64 `json:"seq"`
	BuyOrderID  uint64 `json:"buyOrderId"`
	SellOrderID uint64 `json:"sellOrderId"`
	Price       int64  `json:"price"`
	Qty         int64  `json:"quantity"`
	TakerSide   string `json:"takerSide"`
	Ts          int64  `json:"timestamp"` // unix milli
}

func NewTradeMessage(ev engine.Event) TradeMessage {
	return TradeMessage{
		Symbol:      ev.Symbol,
		Seq:         ev.Seq,
		BuyOrderID:  ev.BuyOrderID,
		SellOrderID: ev.SellOrderID,
		Price:       ev.Price,
		Qty:         ev.Qty,
		TakerSide:   ev.Side.String(),
		Ts:          time.Unix(0, ev.Ts).UnixMilli(),
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink 把成交写到 kafka，key=symbol 保证同一标的落在同一分区、顺序不乱
type KafkaSink struct {
	w messageWriter
}

func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        cfg.Async,
		BatchTimeout: cfg.BatchTimeout,
		BatchSize:    cfg.BatchSize,
	}
	if cfg.Async {
		w.Completion = asyncCompleted
	}
	return &KafkaSink{w: w}
}

// asyncCompleted 异步写完的回调，只关心失败
func asyncCompleted(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	metrics.SinkErrorsTotal.WithLabelValues("kafka").Inc()
	logger.Error(context.Background(), "kafka async write failed", zap.Int("messages", len(msgs)), zap.Error(err))
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Handle(ctx context.Context, ev engine.Event) error {
	if ev.Type != engine.EvTrade {
		return nil
	}
	b, err := json.Marshal(NewTradeMessage(ev))
	if err != nil {
		return err
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: b,
		Time:  time.Unix(0, ev.Ts),
	})
}

func (s *KafkaSink) Close() error { return s.w.Close() }

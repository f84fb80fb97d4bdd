package broadcast

import (
	"context"

	"go.uber.org/zap"
	"jasdaq.com/internal/engine"
	"jasdaq.com/internal/kline"
	"jasdaq.com/pkg/logger"
)

// Publisher 把成交和 K 线发到 broker，各节点的 Hub.Forward 再推给 ws 客户端
type Publisher struct {
	b Broker
}

func NewPublisher(b Broker) *Publisher { return &Publisher{b: b} }

func (p *Publisher) Name() string { return "broadcast" }

func (p *Publisher) Handle(ctx context.Context, ev engine.Event) error {
	if ev.Type != engine.EvTrade {
		return nil
	}
	topic, payload, err := EncodeTrade(ev)
	if err != nil {
		return err
	}
	return p.b.Publish(ctx, topic, payload)
}

// PublishBar 作为 kline.Aggregator 的收盘回调
func (p *Publisher) PublishBar(b kline.Bar) {
	topic, payload, err := EncodeBar(b)
	if err == nil {
		err = p.b.Publish(context.Background(), topic, payload)
	}
	if err != nil {
		logger.Warn(context.Background(), "publish bar failed", zap.String("topic", topic), zap.Error(err))
	}
}

// DefaultTopics Hub.Forward 默认订阅的 topic
var DefaultTopics = []string{"trade:*", "kline:*:*", "notify:*"}

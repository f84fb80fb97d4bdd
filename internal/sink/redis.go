package sink

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"jasdaq.com/internal/engine"
	"jasdaq.com/pkg/metrics"
)

type hashWriter interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisTickerSink 每笔成交刷新 ticker:<symbol>，给行情页直接读
type RedisTickerSink struct {
	rdb    hashWriter
	prefix string
}

func NewRedisTickerSink(rdb *redis.Client) *RedisTickerSink {
	return &RedisTickerSink{rdb: rdb, prefix: "ticker:"}
}

func (s *RedisTickerSink) Name() string { return "redis" }

func (s *RedisTickerSink) Key(symbol string) string { return s.prefix + symbol }

func (s *RedisTickerSink) Handle(ctx context.Context, ev engine.Event) error {
	if ev.Type != engine.EvTrade {
		return nil
	}
	start := time.Now()
	err := s.rdb.HSet(ctx, s.Key(ev.Symbol),
		"last", ev.Price,
		"qty", ev.Qty,
		"side", ev.Side.String(),
		"seq", ev.Seq,
		"ts", time.Unix(0, ev.Ts).UnixMilli(),
	).Err()
	metrics.ObserveRedis("hset", start, err)
	return err
}

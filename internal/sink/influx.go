package sink

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
	"jasdaq.com/internal/engine"
	"jasdaq.com/internal/kline"
	"jasdaq.com/pkg/logger"
	"jasdaq.com/pkg/metrics"
)

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// 写入优化项
	BatchSize     uint          // 建议从 1000~5000 起步
	FlushInterval time.Duration // 例如 1s
	UseGzip       bool
}

type pointWriter interface {
	WritePoint(p *write.Point)
	Flush()
}

// InfluxSink 成交明细和 K 线写 influx，异步批量
type InfluxSink struct {
	client influxdb2.Client
	write  pointWriter
}

func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 1 * time.Second
	}

	opt := influxdb2.DefaultOptions().
		SetBatchSize(cfg.BatchSize).
		SetFlushInterval(uint(cfg.FlushInterval.Milliseconds())).
		SetUseGZip(cfg.UseGzip)

	c := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opt)
	w := c.WriteAPI(cfg.Org, cfg.Bucket)

	// 必须消费 Errors()，否则异步写入错误会堵住写协程
	go func() {
		for err := range w.Errors() {
			metrics.SinkErrorsTotal.WithLabelValues("influx").Inc()
			logger.Warn(context.Background(), "influx write failed", zap.Error(err))
		}
	}()

	return &InfluxSink{client: c, write: w}
}

func (s *InfluxSink) Name() string { return "influx" }

func (s *InfluxSink) Handle(_ context.Context, ev engine.Event) error {
	if ev.Type != engine.EvTrade {
		return nil
	}
	p := write.NewPoint("trade",
		map[string]string{"symbol": ev.Symbol, "taker": ev.Side.String()},
		map[string]interface{}{
			"price": ev.Price,
			"qty":   ev.Qty,
			"buy":   int64(ev.BuyOrderID),
			"sell":  int64(ev.SellOrderID),
			"seq":   int64(ev.Seq),
		},
		time.Unix(0, ev.Ts),
	)
	s.write.WritePoint(p)
	return nil
}

// WriteBar K 线收盘后写入，measurement=kline
func (s *InfluxSink) WriteBar(b kline.Bar) {
	tags := map[string]string{
		"symbol":   b.Symbol,
		"interval": b.TF,
	}
	fields := map[string]interface{}{
		"o": b.Open,
		"h": b.High,
		"l": b.Low,
		"c": b.Close,
		"v": b.Volume,
		"n": b.Count,
	}
	s.write.WritePoint(write.NewPoint("kline", tags, fields, time.UnixMilli(b.StartMs)))
}

// Close 会 flush buffer
func (s *InfluxSink) Close() {
	s.write.Flush()
	if s.client != nil {
		s.client.Close()
	}
}

package sink

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"
	"jasdaq.com/internal/engine"
	"jasdaq.com/pkg/metrics"
	"jasdaq.com/pkg/ratelimit"
)

// breakerSink 外部依赖（kafka/redis/influx/db）挂了以后快速失败，
// 不让 Dispatcher 每条事件都等满超时
type breakerSink struct {
	inner   Sink
	cb      *gobreaker.CircuitBreaker[struct{}]
	service string
}

// WithBreaker 按 sink 名字从 Manager 取熔断器
func WithBreaker(s Sink, m *ratelimit.Manager) Sink {
	return &breakerSink{inner: s, cb: m.Get(s.Name()), service: m.Service()}
}

func (b *breakerSink) Name() string { return b.inner.Name() }

func (b *breakerSink) Handle(ctx context.Context, ev engine.Event) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.inner.Handle(ctx, ev)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		metrics.CBRejectTotal.WithLabelValues(b.service, b.inner.Name(), "open").Inc()
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CBRejectTotal.WithLabelValues(b.service, b.inner.Name(), "half_open").Inc()
	}
	return err
}

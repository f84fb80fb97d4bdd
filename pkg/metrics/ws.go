package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WsConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_conns",
		Help: "Active websocket connections",
	})
	WsConnOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_conn_open_total",
		Help: "Total websocket connections opened",
	})
	WsConnCloseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_conn_close_total",
		Help: "Total websocket connections closed, partitioned by close code and reason",
	}, []string{"code", "reason"})

	WsSubOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sub_ops_total",
		Help: "Total subscription operations",
	}, []string{"op"}) // sub/unsub

	WsMsgsOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_msgs_out_total",
		Help: "Total websocket messages sent out (logical messages, not frames)",
	})
	WsBytesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_bytes_out_total",
		Help: "Total websocket bytes sent out",
	})
	WsWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_write_errors_total",
		Help: "Total websocket write errors",
	})
	WsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_dropped_total",
		Help: "Total dropped messages",
	}, []string{"why"})

	WsPingErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_ping_errors_total",
		Help: "Total ping send errors",
	})
	WsPongRecvTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_pong_recv_total",
		Help: "Total pong received",
	})

	WsWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ws_write_duration_seconds",
		Help:    "Duration of a websocket write batch",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms -> ~4s
	})
	WsBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ws_batch_size",
		Help:    "Number of messages per flush/batch",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	})
)

func WsOnOpen() {
	WsConns.Inc()
	WsConnOpenTotal.Inc()
}

func WsOnClose(code int, reason string) {
	WsConns.Dec()
	WsConnCloseTotal.WithLabelValues(strconv.Itoa(code), reason).Inc()
}

func WsObserveWrite(batchN int, bytes int, dur time.Duration, err error) {
	if batchN > 0 {
		WsMsgsOutTotal.Add(float64(batchN))
		WsBatchSize.Observe(float64(batchN))
	}
	if bytes > 0 {
		WsBytesOutTotal.Add(float64(bytes))
	}
	WsWriteDuration.Observe(dur.Seconds())
	if err != nil {
		WsWriteErrorsTotal.Inc()
	}
}

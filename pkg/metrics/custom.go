package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "jasdaq"

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Total number of orders processed by the matching actors.",
		},
		[]string{"symbol", "type", "result"}, // result: resting/filled/expired/rejected
	)

	CancelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancels_total",
			Help:      "Total number of cancel requests.",
		},
		[]string{"symbol", "result"}, // result: canceled/not_found
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Total number of trades executed.",
		},
		[]string{"symbol"},
	)

	TradedVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_volume_total",
			Help:      "Total traded quantity.",
		},
		[]string{"symbol"},
	)

	MatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_duration_seconds",
			Help:      "Time spent applying one command to the book.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10), // 1us ~ 0.26s
		},
		[]string{"symbol"},
	)

	MailboxRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mailbox_reject_total",
			Help:      "Commands rejected because the actor mailbox was full.",
		},
		[]string{"symbol"},
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the event bus was full.",
		},
	)

	SinkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Errors returned by side-effect sinks.",
		},
		[]string{"sink"},
	)

	RateLimitBlockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_block_total",
			Help:      "Total number of rate limit blocks.",
		},
		[]string{"service", "method", "reason"},
	)

	CBRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_reject_total",
			Help:      "Total number of circuit breaker rejections.",
		},
		[]string{"service", "method", "reason"},
	)

	CBState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"service", "method", "state"}, // state: closed/open/half_open
	)
)

// MustRegister 只在 main 里调用一次
func MustRegister() {
	prometheus.MustRegister(
		OrdersTotal, CancelsTotal, TradesTotal, TradedVolume, MatchDuration,
		MailboxRejectTotal, EventsDroppedTotal, SinkErrorsTotal,
		RateLimitBlockTotal, CBRejectTotal, CBState,
	)
}

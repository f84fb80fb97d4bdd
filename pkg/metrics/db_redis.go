package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	DbPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "app_db_pool_open",
		Help: "Current open DB connections",
	})
	DbPoolIdle         = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_db_pool_idle"})
	DbPoolInuse        = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_db_pool_inuse"})
	DbPoolWaitCount    = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_db_pool_wait_count"})
	DbPoolWaitDuration = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_db_pool_wait_seconds"})

	RedisPoolHits     = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_hits"})
	RedisPoolMisses   = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_misses"})
	RedisPoolTotal    = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_total_conns"})
	RedisPoolIdle     = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_idle_conns"})
	RedisPoolTimeouts = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_timeouts"})

	DbQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "app_db_query_duration_seconds",
		Help:    "DB query latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms ~ 16s
	}, []string{"query", "status"})

	RedisCmdDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "app_redis_cmd_duration_seconds",
		Help:    "Redis command latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"cmd", "status"})
)

// ObserveDB 记录一次查询耗时
func ObserveDB(query string, start time.Time, err error) {
	DbQueryDuration.WithLabelValues(query, status(err)).Observe(time.Since(start).Seconds())
}

func ObserveRedis(cmd string, start time.Time, err error) {
	RedisCmdDuration.WithLabelValues(cmd, status(err)).Observe(time.Since(start).Seconds())
}

// RecordDBStats 把 sql.DBStats 同步到 gauge，由调用方定时触发
func RecordDBStats(st sql.DBStats) {
	DbPoolOpen.Set(float64(st.OpenConnections))
	DbPoolIdle.Set(float64(st.Idle))
	DbPoolInuse.Set(float64(st.InUse))
	DbPoolWaitCount.Set(float64(st.WaitCount))
	DbPoolWaitDuration.Set(st.WaitDuration.Seconds())
}

func RecordRedisStats(st *redis.PoolStats) {
	if st == nil {
		return
	}
	RedisPoolHits.Set(float64(st.Hits))
	RedisPoolMisses.Set(float64(st.Misses))
	RedisPoolTotal.Set(float64(st.TotalConns))
	RedisPoolIdle.Set(float64(st.IdleConns))
	RedisPoolTimeouts.Set(float64(st.Timeouts))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

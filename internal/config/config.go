package config

import (
	"time"

	"golang.org/x/time/rate"
	"jasdaq.com/internal/engine"
	"jasdaq.com/internal/kline"
	"jasdaq.com/internal/sink"
	"jasdaq.com/pkg/orm"
	"jasdaq.com/pkg/ratelimit"
	"jasdaq.com/pkg/xredis"
)

// 总配置
type Cfg struct {
	Name    string        `mapstructure:"name" yaml:"name"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Nats    NatsConfig    `mapstructure:"nats" yaml:"nats"`
	Kafka   KafkaConfig   `mapstructure:"kafka" yaml:"kafka"`
	Influx  InfluxConfig  `mapstructure:"influx" yaml:"influx"`
	Kline   KlineConfig   `mapstructure:"kline" yaml:"kline"`
	WS      WSConfig      `mapstructure:"ws" yaml:"ws"`
	Breaker BreakerConfig `mapstructure:"breaker" yaml:"breaker"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"` // 为空只写 stdout
}

type HTTPConfig struct {
	Addr           string          `mapstructure:"addr" yaml:"addr"`
	PlaceTimeoutMs int             `mapstructure:"place_timeout_ms" yaml:"place_timeout_ms"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps" yaml:"rps"` // <=0 不限流
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

type EngineConfig struct {
	Symbols             []string      `mapstructure:"symbols" yaml:"symbols"`
	AllowDynamicSymbols bool          `mapstructure:"allow_dynamic_symbols" yaml:"allow_dynamic_symbols"`
	MailboxSize         int           `mapstructure:"mailbox_size" yaml:"mailbox_size"`
	BatchMax            int           `mapstructure:"batch_max" yaml:"batch_max"`
	BusSize             int           `mapstructure:"bus_size" yaml:"bus_size"`
	Debug               bool          `mapstructure:"debug" yaml:"debug"` // 每条命令后校验订单簿
	Journal             JournalConfig `mapstructure:"journal" yaml:"journal"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	BufSize int    `mapstructure:"buf_size" yaml:"buf_size"`
	PollMs  int    `mapstructure:"poll_ms" yaml:"poll_ms"`
	Codec   string `mapstructure:"codec" yaml:"codec"` // binary | json
}

type StoreConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	Driver         string `mapstructure:"driver" yaml:"driver"` // mysql | sqlite
	DSN            string `mapstructure:"dsn" yaml:"dsn"`
	MaxOpen        int    `mapstructure:"max_open" yaml:"max_open"`
	MaxIdle        int    `mapstructure:"max_idle" yaml:"max_idle"`
	MaxLifetimeSec int    `mapstructure:"max_lifetime_sec" yaml:"max_lifetime_sec"`
	LogLevel       string `mapstructure:"log_level" yaml:"log_level"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	PoolSize int    `mapstructure:"pool_size" yaml:"pool_size"`
	// 非空时启动前先抢单写者租约
	LeaseKey    string `mapstructure:"lease_key" yaml:"lease_key"`
	LeaseTTLSec int    `mapstructure:"lease_ttl_sec" yaml:"lease_ttl_sec"`
}

type NatsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

type KafkaConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers        []string `mapstructure:"brokers" yaml:"brokers"`
	Topic          string   `mapstructure:"topic" yaml:"topic"`
	BatchTimeoutMs int      `mapstructure:"batch_timeout_ms" yaml:"batch_timeout_ms"`
	BatchSize      int      `mapstructure:"batch_size" yaml:"batch_size"`
	Async          bool     `mapstructure:"async" yaml:"async"` // 不等 ack，错误只记日志
}

type InfluxConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	URL             string `mapstructure:"url" yaml:"url"`
	Token           string `mapstructure:"token" yaml:"token"`
	Org             string `mapstructure:"org" yaml:"org"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	BatchSize       uint   `mapstructure:"batch_size" yaml:"batch_size"`
	FlushIntervalMs int    `mapstructure:"flush_interval_ms" yaml:"flush_interval_ms"`
	UseGzip         bool   `mapstructure:"use_gzip" yaml:"use_gzip"`
}

type KlineConfig struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	TZOffsetH  int  `mapstructure:"tz_offset_hours" yaml:"tz_offset_hours"`
	FillGaps1h bool `mapstructure:"fill_gaps_1h" yaml:"fill_gaps_1h"`
	Keep       int  `mapstructure:"keep" yaml:"keep"`
	TickMs     int  `mapstructure:"tick_ms" yaml:"tick_ms"`
}

type WSConfig struct {
	SendBuf int `mapstructure:"send_buf" yaml:"send_buf"`
}

type BreakerConfig struct {
	TimeoutMs           int    `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	ConsecutiveFailures uint32 `mapstructure:"consecutive_failures" yaml:"consecutive_failures"`
	SinkTimeoutMs       int    `mapstructure:"sink_timeout_ms" yaml:"sink_timeout_ms"`
}

func ms(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}

// Defaults 补齐没配的项
func (c *Cfg) Defaults() {
	if c.Name == "" {
		c.Name = "matching-service"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RateLimit.RPS > 0 && c.HTTP.RateLimit.Burst <= 0 {
		c.HTTP.RateLimit.Burst = int(2 * c.HTTP.RateLimit.RPS)
	}
	if c.Engine.Journal.Enabled && c.Engine.Journal.Dir == "" {
		c.Engine.Journal.Dir = "data/journal"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "mysql"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "trades"
	}
	if c.Redis.LeaseTTLSec <= 0 {
		c.Redis.LeaseTTLSec = 10
	}
}

func (c *Cfg) PlaceTimeout() time.Duration { return ms(c.HTTP.PlaceTimeoutMs, 3000) }

func (c *Cfg) SinkTimeout() time.Duration { return ms(c.Breaker.SinkTimeoutMs, 2000) }

func (c *Cfg) KlineTick() time.Duration { return ms(c.Kline.TickMs, 1000) }

// Limiter RPS<=0 时返回 nil，表示不限流
func (c *Cfg) Limiter() *ratelimit.Store {
	if c.HTTP.RateLimit.RPS <= 0 {
		return nil
	}
	return ratelimit.NewStore(rate.Limit(c.HTTP.RateLimit.RPS), c.HTTP.RateLimit.Burst, 10*time.Minute)
}

func (c *Cfg) EngineConfig() engine.EngineConfig {
	j := c.Engine.Journal
	return engine.EngineConfig{
		Symbols:             c.Engine.Symbols,
		AllowDynamicSymbols: c.Engine.AllowDynamicSymbols,
		ActorCfg:            engine.ActorConfig{MailboxSize: c.Engine.MailboxSize, BatchMax: c.Engine.BatchMax, Debug: c.Engine.Debug},
		BusSize:             c.Engine.BusSize,
		Journal: engine.JournalConfig{
			Enabled: j.Enabled,
			Dir:     j.Dir,
			BufSize: j.BufSize,
			Poll:    ms(j.PollMs, 50),
			Codec:   engine.CodecByName(j.Codec),
		},
	}
}

func (c *Cfg) OrmConfig() *orm.Config {
	return &orm.Config{
		Driver:      c.Store.Driver,
		DSN:         c.Store.DSN,
		MaxIdle:     c.Store.MaxIdle,
		MaxOpen:     c.Store.MaxOpen,
		MaxLifetime: c.Store.MaxLifetimeSec,
		LogLevel:    c.Store.LogLevel,
	}
}

func (c *Cfg) RedisConfig() *xredis.Config {
	return &xredis.Config{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB, PoolSize: c.Redis.PoolSize}
}

func (c *Cfg) KafkaConfig() sink.KafkaConfig {
	return sink.KafkaConfig{
		Brokers:      c.Kafka.Brokers,
		Topic:        c.Kafka.Topic,
		BatchTimeout: ms(c.Kafka.BatchTimeoutMs, 10),
		BatchSize:    c.Kafka.BatchSize,
		Async:        c.Kafka.Async,
	}
}

func (c *Cfg) InfluxConfig() sink.InfluxConfig {
	return sink.InfluxConfig{
		URL:           c.Influx.URL,
		Token:         c.Influx.Token,
		Org:           c.Influx.Org,
		Bucket:        c.Influx.Bucket,
		BatchSize:     c.Influx.BatchSize,
		FlushInterval: ms(c.Influx.FlushIntervalMs, 1000),
		UseGzip:       c.Influx.UseGzip,
	}
}

func (c *Cfg) KlineConfig() kline.Config {
	return kline.Config{
		TZOffset:   time.Duration(c.Kline.TZOffsetH) * time.Hour,
		FillGaps1h: c.Kline.FillGaps1h,
		Keep:       c.Kline.Keep,
	}
}

func (c *Cfg) BreakerRule() ratelimit.Rule {
	return ratelimit.Rule{
		Timeout:                 ms(c.Breaker.TimeoutMs, 3000),
		TripConsecutiveFailures: c.Breaker.ConsecutiveFailures,
	}
}

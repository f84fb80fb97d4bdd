package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	apihttp "jasdaq.com/internal/api/http"
	"jasdaq.com/internal/broadcast"
	"jasdaq.com/internal/config"
	"jasdaq.com/internal/engine"
	"jasdaq.com/internal/kline"
	"jasdaq.com/internal/notify"
	"jasdaq.com/internal/sink"
	"jasdaq.com/internal/tradestore"
	pkgconfig "jasdaq.com/pkg/config"
	"jasdaq.com/pkg/logger"
	"jasdaq.com/pkg/metrics"
	"jasdaq.com/pkg/orm"
	"jasdaq.com/pkg/ratelimit"
	"jasdaq.com/pkg/xredis"
)

const serviceName = "matching-service"

func main() {
	// ========= 0) 全局上下文 & 优雅退出 =========
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// 租约丢了也走同一条退出路径
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ========= 1) 配置 & 日志 =========
	cfg := &config.Cfg{}
	if _, err := pkgconfig.LoadAndWatch(serviceName, cfg, nil); err != nil {
		panic(fmt.Sprintf("初始化配置出错 %+v", err))
	}
	cfg.Defaults()
	logger.InitWithFile(cfg.Name, cfg.Log.Level, cfg.Log.File)
	defer logger.Sync()
	metrics.MustRegister()
	logger.Info(ctx, "服务开始启动", zap.String("addr", cfg.HTTP.Addr), zap.Strings("symbols", cfg.Engine.Symbols))

	if err := run(ctx, cancel, cfg); err != nil {
		logger.Error(ctx, "service exit with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info(context.Background(), "service exit")
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Cfg) error {
	// ========= 2) Redis & 单写者租约 =========
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		c, err := xredis.NewRedis(ctx, cfg.RedisConfig())
		if err != nil {
			return err
		}
		rdb = c
		defer func() { _ = rdb.Close() }()
	}
	var lease *xredis.Lease
	if rdb != nil && cfg.Redis.LeaseKey != "" {
		lease = xredis.NewLease(rdb, cfg.Redis.LeaseKey, time.Duration(cfg.Redis.LeaseTTLSec)*time.Second)
		ok, err := lease.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire lease: %w", err)
		}
		if !ok {
			return fmt.Errorf("lease %s is held by another instance", cfg.Redis.LeaseKey)
		}
		defer func() { _ = lease.Release(context.Background()) }()
	}

	// ========= 3) 撮合引擎 =========
	eng, err := engine.NewEngine(cfg.EngineConfig())
	if err != nil {
		return err
	}
	defer eng.Stop()

	// ========= 4) 广播 =========
	var broker broadcast.Broker = broadcast.NewMemBroker()
	if cfg.Nats.Enabled {
		nb, err := broadcast.NewNatsBroker(cfg.Nats.URL)
		if err != nil {
			return err
		}
		broker = nb
	}
	defer func() { _ = broker.Close() }()
	hub := broadcast.NewHub()
	ws := broadcast.NewServer(ctx, hub)
	if cfg.WS.SendBuf > 0 {
		ws.SendBuf = cfg.WS.SendBuf
	}
	pub := broadcast.NewPublisher(broker)

	// ========= 5) 旁路 sink =========
	breakers := ratelimit.NewManager(cfg.Name, cfg.BreakerRule(), nil)
	disp := sink.NewDispatcher(cfg.SinkTimeout())

	var store *tradestore.Store
	if cfg.Store.Enabled {
		db, err := orm.Open(cfg.OrmConfig())
		if err != nil {
			return err
		}
		store = tradestore.New(db)
		if err := store.Migrate(); err != nil {
			return fmt.Errorf("migrate trades: %w", err)
		}
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}()
		disp.Add(sink.WithBreaker(store, breakers))
	}
	if rdb != nil {
		disp.Add(sink.WithBreaker(sink.NewRedisTickerSink(rdb), breakers))
	}
	if cfg.Kafka.Enabled {
		ks := sink.NewKafkaSink(cfg.KafkaConfig())
		defer func() { _ = ks.Close() }()
		disp.Add(sink.WithBreaker(ks, breakers))
	}
	var influx *sink.InfluxSink
	if cfg.Influx.Enabled {
		influx = sink.NewInfluxSink(cfg.InfluxConfig())
		defer influx.Close()
		disp.Add(sink.WithBreaker(influx, breakers))
	}

	var agg *kline.Aggregator
	if cfg.Kline.Enabled {
		agg = kline.NewAggregator(cfg.KlineConfig(), func(b kline.Bar) {
			pub.PublishBar(b)
			if influx != nil {
				influx.WriteBar(b)
			}
		})
		disp.Add(agg)
	}
	disp.Add(pub, notify.NewNotifier(broker))

	// ========= 6) HTTP =========
	limiter := cfg.Limiter()
	if limiter != nil {
		limiter.StartJanitor(ctx, time.Minute)
	}
	srv := apihttp.NewServer(cfg.HTTP.Addr, apihttp.Deps{
		Service:      "jasdaq",
		Engine:       eng,
		Store:        store,
		Klines:       agg,
		WS:           ws,
		Limiter:      limiter,
		PlaceTimeout: cfg.PlaceTimeout(),
	})

	// ========= 7) 启动 =========
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return disp.Run(gctx, eng.Events()) })
	g.Go(func() error { return hub.Forward(gctx, broker, broadcast.DefaultTopics) })
	if agg != nil {
		g.Go(func() error {
			agg.Run(gctx, cfg.KlineTick())
			return nil
		})
	}
	if lease != nil {
		g.Go(func() error {
			lease.Keep(gctx, func(err error) {
				logger.Error(gctx, "lost matching lease, shutting down", zap.Error(err))
				cancel()
			})
			return nil
		})
	}
	g.Go(func() error {
		poolStats(gctx, store, rdb)
		return nil
	})
	g.Go(func() error {
		logger.Info(gctx, "http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "http shutdown error", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

// poolStats 定时上报连接池指标
func poolStats(ctx context.Context, store *tradestore.Store, rdb *redis.Client) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if store != nil {
				store.RecordPoolStats()
			}
			if rdb != nil {
				metrics.RecordRedisStats(rdb.PoolStats())
			}
		}
	}
}

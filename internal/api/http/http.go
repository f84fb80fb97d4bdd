package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"jasdaq.com/internal/api/handler"
	"jasdaq.com/internal/api/http/router"
	"jasdaq.com/internal/broadcast"
	"jasdaq.com/internal/engine"
	"jasdaq.com/internal/kline"
	"jasdaq.com/internal/tradestore"
	"jasdaq.com/pkg/middleware"
	"jasdaq.com/pkg/ratelimit"
)

// Deps 路由用到的组件；Store/Klines/WS 为 nil 时对应路由不注册
type Deps struct {
	Service      string
	Engine       *engine.Engine
	Store        *tradestore.Store
	Klines       *kline.Aggregator
	WS           *broadcast.Server
	Limiter      *ratelimit.Store
	PlaceTimeout time.Duration
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	// 监控，顺带挂上 /metrics
	p := ginprom.NewPrometheus(d.Service)
	p.Use(r)
	r.Use(
		middleware.ReqId(),
		middleware.AccessLog(),
		cors.Default(),
		middleware.Recover(),
	)
	if d.Limiter != nil {
		r.Use(middleware.RateLimit(d.Service, d.Limiter))
	}

	api := r.Group("/api")
	router.Orders(api, &handler.Orders{Engine: d.Engine, Timeout: d.PlaceTimeout})
	if d.Store != nil {
		router.Trades(api, &handler.Trades{Store: d.Store})
	}
	if d.Klines != nil {
		router.Klines(api, &handler.Klines{Agg: d.Klines})
	}
	if d.WS != nil {
		r.GET("/ws", gin.WrapF(d.WS.ServeWS))
	}
	return r
}

func NewServer(addr string, d Deps) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        NewRouter(d),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

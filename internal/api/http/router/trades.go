package router

import (
	"github.com/gin-gonic/gin"
	"jasdaq.com/internal/api/handler"
)

func Trades(api *gin.RouterGroup, h *handler.Trades) {
	db := api.Group("/trades/db")
	{
		db.GET("/last/:symbol", h.Last)
		db.GET("/symbol/:symbol", h.BySymbol)
		db.GET("/average/:symbol", h.Average)
		db.GET("/count/:symbol", h.Count)
		db.GET("/minmax/:symbol", h.MinMax)
		db.GET("/top-volume", h.TopVolume)
		db.POST("/reset", h.Reset)
	}
}

func Klines(api *gin.RouterGroup, h *handler.Klines) {
	api.GET("/klines/:symbol", h.Get)
}

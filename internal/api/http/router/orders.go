package router

import (
	"github.com/gin-gonic/gin"
	"jasdaq.com/internal/api/handler"
)

func Orders(api *gin.RouterGroup, h *handler.Orders) {
	orders := api.Group("/orders")
	{
		orders.POST("/place", h.Place)
		orders.POST("/cancel", h.Cancel)
		orders.POST("/snapshot", h.Snapshot)
		orders.GET("/quote/:symbol", h.Quote)
		orders.GET("/trades/:symbol", h.Trades)
		orders.GET("/symbols", h.Symbols)
		orders.GET("/sayhi", h.SayHi)
	}
}

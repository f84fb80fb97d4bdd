package handler

import (
	"github.com/gin-gonic/gin"
	"jasdaq.com/internal/kline"
	"jasdaq.com/pkg/common"
	"jasdaq.com/pkg/xerr"
)

type Klines struct {
	Agg *kline.Aggregator
}

// Get 最近 limit 根已收盘的K线，外加当前未收盘的一根
func (h *Klines) Get(c *gin.Context) {
	tf := c.DefaultQuery("interval", "1m")
	if tf != "1m" && tf != "1h" {
		common.FailErr(c, xerr.New(xerr.RequestParamsError, "interval must be 1m or 1h"))
		return
	}
	n, err := intQuery(c, "limit", 100)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.Success(c, h.Agg.Bars(c.Param("symbol"), tf, n))
}

package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"jasdaq.com/internal/tradestore"
	"jasdaq.com/pkg/common"
)

// Trades 已落库成交的查询
type Trades struct {
	Store *tradestore.Store
}

type averageResp struct {
	Symbol  string `json:"symbol"`
	Minutes int    `json:"minutes"`
	Average string `json:"average"`
}

type countResp struct {
	Symbol  string `json:"symbol"`
	Minutes int    `json:"minutes"`
	Count   int64  `json:"count"`
}

func minutes(c *gin.Context) (int, time.Duration, error) {
	m, err := intQuery(c, "minutes", 60)
	return m, time.Duration(m) * time.Minute, err
}

func (h *Trades) Last(c *gin.Context) {
	n, err := intQuery(c, "count", 10)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	ts, err := h.Store.LastTrades(c.Request.Context(), c.Param("symbol"), n)
	if err != nil {
		common.FailErr(c, storeErr(err))
		return
	}
	common.Success(c, ts)
}

func (h *Trades) BySymbol(c *gin.Context) {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	ts, err := h.Store.ListTrades(c.Request.Context(), c.Param("symbol"), page, limit)
	if err != nil {
		common.FailErr(c, storeErr(err))
		return
	}
	common.Success(c, ts)
}

func (h *Trades) Average(c *gin.Context) {
	m, window, err := minutes(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	sym := c.Param("symbol")
	avg, err := h.Store.AveragePrice(c.Request.Context(), sym, window)
	if err != nil {
		common.FailErr(c, storeErr(err))
		return
	}
	common.Success(c, averageResp{Symbol: sym, Minutes: m, Average: avg.StringFixed(2)})
}

func (h *Trades) Count(c *gin.Context) {
	m, window, err := minutes(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	sym := c.Param("symbol")
	n, err := h.Store.CountTrades(c.Request.Context(), sym, window)
	if err != nil {
		common.FailErr(c, storeErr(err))
		return
	}
	common.Success(c, countResp{Symbol: sym, Minutes: m, Count: n})
}

func (h *Trades) MinMax(c *gin.Context) {
	_, window, err := minutes(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	mm, err := h.Store.MinMaxPrice(c.Request.Context(), c.Param("symbol"), window)
	if err != nil {
		common.FailErr(c, storeErr(err))
		return
	}
	common.Success(c, mm)
}

func (h *Trades) TopVolume(c *gin.Context) {
	_, window, err := minutes(c)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	limit, err := intQuery(c, "limit", 5)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	rows, err := h.Store.TopSymbolsByVolume(c.Request.Context(), window, limit)
	if err != nil {
		common.FailErr(c, storeErr(err))
		return
	}
	common.Success(c, rows)
}

func (h *Trades) Reset(c *gin.Context) {
	if err := h.Store.Reset(c.Request.Context()); err != nil {
		common.FailErr(c, storeErr(err))
		return
	}
	common.Success(c, gin.H{"reset": true})
}

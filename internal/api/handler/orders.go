package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"jasdaq.com/internal/engine"
	"jasdaq.com/internal/matching"
	"jasdaq.com/pkg/common"
)

// Orders 下单/撤单/盘口
type Orders struct {
	Engine  *engine.Engine
	Timeout time.Duration // 等撮合结果的最长时间
}

type orderReq struct {
	ID       uint64 `json:"id"`
	Side     string `json:"side"`
	Quantity int64  `json:"quantity"`
	Price    *int64 `json:"price"` // 不传就是市价单
}

type placeReq struct {
	Symbol   string   `json:"symbol" binding:"required"`
	ClientID string   `json:"clientId"`
	Order    orderReq `json:"order"`
}

type cancelReq struct {
	Symbol  string `json:"symbol" binding:"required"`
	OrderID uint64 `json:"orderId"`
}

type symbolReq struct {
	Symbol string `json:"symbol" binding:"required"`
}

type orderView struct {
	ID       uint64 `json:"id"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Price    *int64 `json:"price,omitempty"`
	Quantity int64  `json:"quantity"`
	ClientID string `json:"clientId,omitempty"`
}

type cancelResp struct {
	Canceled bool       `json:"canceled"`
	Order    *orderView `json:"order,omitempty"`
}

// quoteResp 不可用的字段是 null
type quoteResp struct {
	Symbol          string `json:"symbol"`
	BestBid         *int64 `json:"bestBid"`
	BestAsk         *int64 `json:"bestAsk"`
	Spread          *int64 `json:"spread"`
	LastTradedPrice *int64 `json:"lastTradedPrice"`
}

func (h *Orders) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 3 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), d)
}

func (r orderReq) toOrder(clientID string) (matching.Order, error) {
	side, err := matching.ParseSide(r.Side)
	if err != nil {
		return matching.Order{}, err
	}
	kind := matching.AtMarket()
	if r.Price != nil {
		kind = matching.LimitAt(*r.Price)
	}
	return matching.Order{ID: r.ID, Side: side, Kind: kind, Qty: r.Quantity, ClientID: clientID}, nil
}

func viewOf(o matching.Order) *orderView {
	v := &orderView{
		ID:       o.ID,
		Side:     o.Side.String(),
		Type:     o.Kind.Type.String(),
		Quantity: o.Qty,
		ClientID: o.ClientID,
	}
	if p, ok := o.Kind.LimitPrice(); ok {
		v.Price = &p
	}
	return v
}

func (h *Orders) Place(c *gin.Context) {
	var req placeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailErr(c, badRequest(err))
		return
	}
	o, err := req.Order.toOrder(req.ClientID)
	if err != nil {
		common.FailErr(c, codeOf(err))
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	res, err := h.Engine.Place(ctx, req.Symbol, o)
	if err != nil {
		common.FailErr(c, codeOf(err))
		return
	}
	common.Success(c, res)
}

func (h *Orders) Cancel(c *gin.Context) {
	var req cancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailErr(c, badRequest(err))
		return
	}
	if req.OrderID == 0 {
		common.FailErr(c, badRequest(errors.New("orderId is required")))
		return
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	o, ok, err := h.Engine.Cancel(ctx, req.Symbol, req.OrderID)
	if err != nil {
		common.FailErr(c, codeOf(err))
		return
	}
	// 订单不存在不算错误
	resp := cancelResp{Canceled: ok}
	if ok {
		resp.Order = viewOf(o)
	}
	common.Success(c, resp)
}

func (h *Orders) Snapshot(c *gin.Context) {
	var req symbolReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailErr(c, badRequest(err))
		return
	}
	snap, err := h.Engine.Snapshot(req.Symbol)
	if err != nil {
		common.FailErr(c, codeOf(err))
		return
	}
	common.Success(c, snap)
}

func (h *Orders) Quote(c *gin.Context) {
	sym := c.Param("symbol")
	q, err := h.Engine.Quote(sym)
	if err != nil {
		common.FailErr(c, codeOf(err))
		return
	}
	resp := quoteResp{Symbol: sym}
	if q.HasBid {
		resp.BestBid = &q.BestBid
	}
	if q.HasAsk {
		resp.BestAsk = &q.BestAsk
	}
	if q.HasSpread {
		resp.Spread = &q.Spread
	}
	if q.HasLast {
		resp.LastTradedPrice = &q.LastPrice
	}
	common.Success(c, resp)
}

// Trades 内存里的成交历史，按成交顺序
func (h *Orders) Trades(c *gin.Context) {
	trades, err := h.Engine.TradeHistory(c.Param("symbol"))
	if err != nil {
		common.FailErr(c, codeOf(err))
		return
	}
	common.Success(c, trades)
}

func (h *Orders) Symbols(c *gin.Context) {
	common.Success(c, h.Engine.Symbols())
}

func (h *Orders) SayHi(c *gin.Context) {
	common.Success(c, "hi")
}

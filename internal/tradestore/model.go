package tradestore

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade 成交落库的行
// OrderType 记录主动方方向 BUY/SELL
type Trade struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol      string          `gorm:"size:16;not null;index:idx_symbol_ts,priority:1" json:"symbol"` // 宽度同 engine.MaxSymbolLen
	Seq         uint64          `gorm:"not null;default:0" json:"seq"`
	BuyOrderID  uint64          `gorm:"not null" json:"buyOrderId"`
	SellOrderID uint64          `gorm:"not null" json:"sellOrderId"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Volume      int64           `gorm:"not null" json:"volume"`
	OrderType   string          `gorm:"size:10;not null" json:"orderType"`
	Timestamp   time.Time       `gorm:"not null;index:idx_symbol_ts,priority:2;index:idx_ts" json:"timestamp"`
}

func (Trade) TableName() string { return "trades" }

// MinMax 时间窗内最低/最高成交价
type MinMax struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// SymbolVolume 成交量排行的一行
type SymbolVolume struct {
	Symbol      string `json:"symbol"`
	TotalVolume int64  `json:"totalVolume"`
}

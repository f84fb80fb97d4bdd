package tradestore

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"jasdaq.com/internal/engine"
	"jasdaq.com/pkg/metrics"
	"jasdaq.com/pkg/orm"
)

var ErrBadArgument = errors.New("tradestore: bad argument")

// Store 成交记录与统计查询
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Trade{})
}

// FromEvent 成交事件 -> 行；价格两位小数
func FromEvent(ev engine.Event) Trade {
	return Trade{
		Symbol:      ev.Symbol,
		Seq:         ev.Seq,
		BuyOrderID:  ev.BuyOrderID,
		SellOrderID: ev.SellOrderID,
		Price:       decimal.NewFromInt(ev.Price).Round(2),
		Volume:      ev.Qty,
		OrderType:   ev.Side.String(),
		Timestamp:   time.Unix(0, ev.Ts).UTC(),
	}
}

func (s *Store) Name() string { return "tradestore" }

// Handle 作为 sink 只关心成交
func (s *Store) Handle(ctx context.Context, ev engine.Event) error {
	if ev.Type != engine.EvTrade {
		return nil
	}
	t := FromEvent(ev)
	return s.SaveTrade(ctx, &t)
}

func (s *Store) SaveTrade(ctx context.Context, t *Trade) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Create(t).Error
	metrics.ObserveDB("save_trade", start, err)
	return err
}

// SaveTrades 批量写，每批 batch 条
func (s *Store) SaveTrades(ctx context.Context, ts []Trade, batch int) error {
	if len(ts) == 0 {
		return nil
	}
	if batch <= 0 {
		batch = 500
	}
	start := time.Now()
	err := s.db.WithContext(ctx).CreateInBatches(ts, batch).Error
	metrics.ObserveDB("save_trades", start, err)
	return err
}

// LastTrades 最近 n 笔，新的在前
func (s *Store) LastTrades(ctx context.Context, symbol string, n int) ([]Trade, error) {
	if n <= 0 {
		return nil, ErrBadArgument
	}
	start := time.Now()
	var rows []Trade
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp DESC, id DESC").
		Limit(n).
		Find(&rows).Error
	metrics.ObserveDB("last_trades", start, err)
	return rows, err
}

// ListTrades 按 symbol 分页，新的在前
func (s *Store) ListTrades(ctx context.Context, symbol string, page, limit int) ([]Trade, error) {
	start := time.Now()
	var rows []Trade
	q := s.db.WithContext(ctx).Where("symbol = ?", symbol).Order("id DESC")
	err := orm.ApplyPagination(q, page, limit).Find(&rows).Error
	metrics.ObserveDB("list_trades", start, err)
	return rows, err
}

func (s *Store) cutoff(window time.Duration) (time.Time, error) {
	if window <= 0 {
		return time.Time{}, ErrBadArgument
	}
	return s.now().Add(-window).UTC(), nil
}

// AveragePrice 时间窗内平均成交价，两位小数；没有成交返回 0
func (s *Store) AveragePrice(ctx context.Context, symbol string, window time.Duration) (decimal.Decimal, error) {
	from, err := s.cutoff(window)
	if err != nil {
		return decimal.Zero, err
	}
	start := time.Now()
	var avg decimal.NullDecimal
	err = s.db.WithContext(ctx).Model(&Trade{}).
		Select("AVG(price)").
		Where("symbol = ? AND timestamp >= ?", symbol, from).
		Row().Scan(&avg)
	metrics.ObserveDB("average_price", start, err)
	if err != nil || !avg.Valid {
		return decimal.Zero, err
	}
	return avg.Decimal.Round(2), nil
}

func (s *Store) CountTrades(ctx context.Context, symbol string, window time.Duration) (int64, error) {
	from, err := s.cutoff(window)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	var n int64
	err = s.db.WithContext(ctx).Model(&Trade{}).
		Where("symbol = ? AND timestamp >= ?", symbol, from).
		Count(&n).Error
	metrics.ObserveDB("count_trades", start, err)
	return n, err
}

// MinMaxPrice 没有成交时都是 0
func (s *Store) MinMaxPrice(ctx context.Context, symbol string, window time.Duration) (MinMax, error) {
	from, err := s.cutoff(window)
	if err != nil {
		return MinMax{}, err
	}
	start := time.Now()
	var lo, hi decimal.NullDecimal
	err = s.db.WithContext(ctx).Model(&Trade{}).
		Select("MIN(price), MAX(price)").
		Where("symbol = ? AND timestamp >= ?", symbol, from).
		Row().Scan(&lo, &hi)
	metrics.ObserveDB("minmax_price", start, err)

	out := MinMax{Min: decimal.Zero, Max: decimal.Zero}
	if err != nil {
		return out, err
	}
	if lo.Valid {
		out.Min = lo.Decimal.Round(2)
	}
	if hi.Valid {
		out.Max = hi.Decimal.Round(2)
	}
	return out, nil
}

// TopSymbolsByVolume 时间窗内成交量前 limit 的标的
func (s *Store) TopSymbolsByVolume(ctx context.Context, window time.Duration, limit int) ([]SymbolVolume, error) {
	from, err := s.cutoff(window)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, ErrBadArgument
	}
	start := time.Now()
	var rows []SymbolVolume
	err = s.db.WithContext(ctx).Model(&Trade{}).
		Select("symbol, SUM(volume) AS total_volume").
		Where("timestamp >= ?", from).
		Group("symbol").
		Order("total_volume DESC, symbol ASC").
		Limit(limit).
		Scan(&rows).Error
	metrics.ObserveDB("top_volume", start, err)
	return rows, err
}

// Reset 清空成交表
func (s *Store) Reset(ctx context.Context) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Trade{}).Error
	metrics.ObserveDB("reset", start, err)
	return err
}

// RecordPoolStats 连接池指标，main 里定时调用
func (s *Store) RecordPoolStats() {
	if sqlDB, err := s.db.DB(); err == nil {
		metrics.RecordDBStats(sqlDB.Stats())
	}
}

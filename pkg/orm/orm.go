package orm

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Driver      string // mysql | sqlite
	DSN         string // 连接字符串；sqlite 可以是 file::memory:
	MaxIdle     int    // 最大空闲连接
	MaxOpen     int    // 最大打开连接
	MaxLifetime int    // 连接存活秒数
	LogLevel    string // silent | error | warn | info
}

// Open 初始化 GORM
func Open(c *Config) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch c.Driver {
	case "", "mysql":
		dial = mysql.Open(c.DSN)
	case "sqlite":
		dial = sqlite.Open(c.DSN)
	default:
		return nil, fmt.Errorf("orm: unknown driver %q", c.Driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel(c.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("orm: open %s: %w", c.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 连接池
	if c.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(c.MaxIdle)
	}
	if c.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(c.MaxOpen)
	}
	if c.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(c.MaxLifetime) * time.Second)
	}
	return db, nil
}

// 生产环境用 warn/error，开发环境用 info（打印 SQL）
func logLevel(s string) logger.LogLevel {
	switch s {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

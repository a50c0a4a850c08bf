package database

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/sessionctx/types"
)

// =============================================================================
// 🔌 连接打开
// =============================================================================

// Config 打开数据库所需的最小配置
type Config struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" json:"driver"`

	// 连接字符串
	DSN string `yaml:"dsn" json:"dsn"`

	// 连接池配置
	Pool PoolConfig `yaml:"pool" json:"pool"`
}

// Dialector 根据驱动名返回 GORM 方言
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite", "sqlite3":
		// 纯 Go 实现，无需 cgo
		return sqlite.Open(dsn), nil
	default:
		return nil, types.NewError(types.ErrUnsupportedDriver, fmt.Sprintf("unsupported database driver %q", driver))
	}
}

// Open 打开数据库并返回连接池管理器
func Open(cfg Config, logger *zap.Logger) (*PoolManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, err := Dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	pm, err := NewPoolManager(db, cfg.Pool, logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return pm, nil
}

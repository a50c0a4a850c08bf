package migration

import (
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/BaSui01/sessionctx/config"
)

// FromDatabaseConfig 按配置文件的 database 段创建迁移器
func FromDatabaseConfig(dbCfg appconfig.DatabaseConfig, logger *zap.Logger) (*SchemaMigrator, error) {
	d, err := ParseDialect(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	return New(Config{Dialect: d, URL: migrationURL(d, dbCfg), Logger: logger})
}

// FromURL 按 --db-type 与 --db-url 创建迁移器
func FromURL(dbType, url string, logger *zap.Logger) (*SchemaMigrator, error) {
	d, err := ParseDialect(dbType)
	if err != nil {
		return nil, err
	}
	return New(Config{Dialect: d, URL: url, Logger: logger})
}

// migrationURL 与会话存储的 DSN 不同：mysql 迁移文件含多条语句，需要 multiStatements
func migrationURL(d Dialect, c appconfig.DatabaseConfig) string {
	switch d {
	case Postgres:
		ssl := c.SSLMode
		if ssl == "" {
			ssl = "require"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, ssl)
	case MySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true", c.User, c.Password, c.Host, c.Port, c.Name)
	case SQLite:
		// Name 即文件路径
		return fmt.Sprintf("file:%s?mode=rwc&_pragma=foreign_keys(1)", c.Name)
	}
	return ""
}

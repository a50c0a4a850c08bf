package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite" // 注册 "sqlite"，与 GORM 会话存储同一驱动
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// =============================================================================
// 📐 方言
// =============================================================================

// Dialect 迁移文件所属的 SQL 方言，同时也是 database/sql 驱动名
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// DefaultTable golang-migrate 记录版本的表
const DefaultTable = "schema_migrations"

// ParseDialect 解析驱动名及其常见别名
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported database type: %s", s)
}

func (d Dialect) dir() (string, error) {
	switch d {
	case Postgres, MySQL, SQLite:
		return path.Join("migrations", string(d)), nil
	}
	return "", fmt.Errorf("unsupported database type: %s", d)
}

func (d Dialect) driver(db *sql.DB, table string) (database.Driver, error) {
	switch d {
	case Postgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	case MySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
	case SQLite:
		// sqlite3 驱动只依赖 *sql.DB，底层换成纯 Go 实现也可用
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: table})
	}
	return nil, fmt.Errorf("unsupported database type: %s", d)
}

// =============================================================================
// 📋 迁移状态
// =============================================================================

// Step 单个内嵌迁移
type Step struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// State 库里记录的版本与全部内嵌迁移
type State struct {
	Version uint
	Dirty   bool
	Steps   []Step
}

// Applied 已应用的迁移数
func (s State) Applied() int {
	n := 0
	for _, st := range s.Steps {
		if st.Applied {
			n++
		}
	}
	return n
}

// Pending 待应用的迁移数
func (s State) Pending() int {
	return len(s.Steps) - s.Applied()
}

// catalog 按版本升序列出方言的内嵌迁移
func catalog(d Dialect) ([]Step, error) {
	dir, err := d.dir()
	if err != nil {
		return nil, err
	}
	names, err := fs.Glob(migrationsFS, path.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	steps := make([]Step, 0, len(names))
	for _, name := range names {
		mig, err := source.DefaultParse(path.Base(name))
		if err != nil {
			return nil, fmt.Errorf("bad migration file %s: %w", name, err)
		}
		steps = append(steps, Step{Version: mig.Version, Name: mig.Identifier})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}

// =============================================================================
// 🛠️ 迁移器
// =============================================================================

// Migrator sessionctl migrate 使用的迁移操作
type Migrator interface {
	// Up 应用全部待执行迁移
	Up(ctx context.Context) error
	// Down 回滚最近一次迁移
	Down(ctx context.Context) error
	// Reset 回滚全部迁移
	Reset(ctx context.Context) error
	Goto(ctx context.Context, version uint) error
	// Force 只改写版本记录，不执行 SQL，用于清理 dirty 状态
	Force(ctx context.Context, version int) error
	State(ctx context.Context) (State, error)
	Close() error
}

// Config 迁移器配置
type Config struct {
	Dialect Dialect
	// URL 交给 database/sql 的连接串
	URL string
	// 默认 DefaultTable
	Table string
	// 默认 15s
	LockTimeout time.Duration
	Logger      *zap.Logger
}

// SchemaMigrator 基于 golang-migrate 与内嵌 SQL 的 Migrator
type SchemaMigrator struct {
	dialect Dialect
	m       *migrate.Migrate
	logger  *zap.Logger
}

var _ Migrator = (*SchemaMigrator)(nil)

// New 打开数据库并装配内嵌迁移
func New(cfg Config) (*SchemaMigrator, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}
	dir, err := cfg.Dialect.dir()
	if err != nil {
		return nil, err
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	logger := cfg.Logger.With(
		zap.String("component", "migration"),
		zap.String("dialect", string(cfg.Dialect)),
	)

	db, err := sql.Open(string(cfg.Dialect), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	target, err := cfg.Dialect.driver(db, cfg.Table)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(cfg.Dialect), target)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = cfg.LockTimeout
	m.Log = migrateLog{logger: logger}

	return &SchemaMigrator{dialect: cfg.Dialect, m: m, logger: logger}, nil
}

// run 执行一次迁移动作，已是目标版本不算错误
func (s *SchemaMigrator) run(op string, fn func() error) error {
	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		s.logger.Debug("schema already at target", zap.String("op", op))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", op, err)
	}
	return nil
}

func (s *SchemaMigrator) Up(ctx context.Context) error {
	return s.run("up", s.m.Up)
}

func (s *SchemaMigrator) Down(ctx context.Context) error {
	return s.run("down", func() error { return s.m.Steps(-1) })
}

func (s *SchemaMigrator) Reset(ctx context.Context) error {
	return s.run("reset", s.m.Down)
}

func (s *SchemaMigrator) Goto(ctx context.Context, version uint) error {
	return s.run("goto", func() error { return s.m.Migrate(version) })
}

func (s *SchemaMigrator) Force(ctx context.Context, version int) error {
	if err := s.m.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	s.logger.Warn("migration version forced", zap.Int("version", version))
	return nil
}

// State 读取当前版本并标注每个内嵌迁移是否已应用
func (s *SchemaMigrator) State(ctx context.Context) (State, error) {
	version, dirty, err := s.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		version, dirty, err = 0, false, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to get version: %w", err)
	}

	steps, err := catalog(s.dialect)
	if err != nil {
		return State{}, err
	}
	for i := range steps {
		steps[i].Applied = steps[i].Version <= version
		steps[i].Dirty = dirty && steps[i].Version == version
	}
	return State{Version: version, Dirty: dirty, Steps: steps}, nil
}

// Close 释放迁移源与数据库连接
func (s *SchemaMigrator) Close() error {
	srcErr, dbErr := s.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return fmt.Errorf("failed to close migrator: %w", err)
	}
	return nil
}

// migrateLog 把 golang-migrate 的进度行写进 zap
type migrateLog struct {
	logger *zap.Logger
}

func (l migrateLog) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLog) Verbose() bool { return false }

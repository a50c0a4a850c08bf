package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/sessionctx/internal/database"
	"github.com/BaSui01/sessionctx/types"
)

// SessionRow session_memory 表的一行
type SessionRow struct {
	SID         string    `gorm:"column:sid;primaryKey;size:191"`
	Payload     string    `gorm:"column:payload;type:text;not null"`
	CharacterID *string   `gorm:"column:character_id;size:191"`
	UpdatedAt   time.Time `gorm:"column:ts_updated;not null;autoUpdateTime:false"`
}

// TableName 实现 gorm 的 tabler
func (SessionRow) TableName() string {
	return "session_memory"
}

// SQLStore 基于 GORM 的 session_memory 表存储
// 每次 SavePatch 在一个持有行锁的事务中完成读-合并-写（方言支持时使用 SELECT ... FOR UPDATE），死锁与忙错误时重试
type SQLStore struct {
	pool       *database.PoolManager
	maxRetries int
	core       mergeCore
	logger     *zap.Logger
}

// NewSQLStore 在已打开的连接池上创建存储，连接池归存储所有
func NewSQLStore(pool *database.PoolManager, config StoreConfig, opts ...Option) (*SQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil database pool", ErrInvalidInput)
	}
	o := buildOptions(opts)

	if config.SQL.AutoMigrate {
		if err := pool.DB().AutoMigrate(&SessionRow{}); err != nil {
			return nil, fmt.Errorf("failed to migrate session_memory: %w", err)
		}
	}

	return &SQLStore{
		pool:       pool,
		maxRetries: retryBudget(config),
		core:       newMergeCore(string(StoreTypeSQL), config, o),
		logger:     o.logger.With(zap.String("component", "sql_session_store")),
	}, nil
}

// Close 关闭底层连接池
func (s *SQLStore) Close() error {
	return s.pool.Close()
}

// Ping 健康检查
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		if types.IsErrorCode(err, types.ErrStoreClosed) {
			return ErrStoreClosed
		}
		return err
	}
	return nil
}

// Load 读取 sid 对应的行
func (s *SQLStore) Load(ctx context.Context, sid string) (types.Document, error) {
	if err := validateSID(sid); err != nil {
		return nil, err
	}
	if s.pool.Closed() {
		return nil, ErrStoreClosed
	}

	var row SessionRow
	err := s.pool.DB().WithContext(ctx).Where("sid = ?", sid).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "load session row").WithCause(err).WithSession(sid)
	}
	return DecodeDocument([]byte(row.Payload))
}

// SavePatch 在事务内把补丁合并进 sid 对应的行
func (s *SQLStore) SavePatch(ctx context.Context, sid string, patch types.Patch, opts ...SaveOption) error {
	if err := validateSID(sid); err != nil {
		return err
	}
	so := applySaveOptions(opts)

	err := s.pool.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		var prev SessionRow
		found := true
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("sid = ?", sid).Take(&prev).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			found = false
		} else if err != nil {
			return err
		}

		var current types.Document
		if found {
			if current, err = DecodeDocument([]byte(prev.Payload)); err != nil {
				return err
			}
		}

		data, err := s.core.apply(ctx, sid, current, patch)
		if err != nil {
			return err
		}

		row := SessionRow{
			SID:       sid,
			Payload:   string(data),
			UpdatedAt: s.core.now().UTC(),
		}
		if found {
			row.CharacterID = prev.CharacterID
		}
		if so.characterID != "" {
			id := so.characterID
			row.CharacterID = &id
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sid"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "character_id", "ts_updated"}),
		}).Create(&row).Error
	})
	if err == nil {
		return nil
	}

	if types.IsErrorCode(err, types.ErrStoreClosed) {
		return ErrStoreClosed
	}
	var capErr *CapacityExceededError
	if errors.As(err, &capErr) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	var typed *types.Error
	if errors.As(err, &typed) {
		return err
	}
	return types.NewError(types.ErrStoreUnavailable, "save session row").WithCause(err).WithSession(sid).WithRetryable(database.IsRetryableError(err))
}

// CharacterID 返回行上记录的角色 id
func (s *SQLStore) CharacterID(ctx context.Context, sid string) (string, error) {
	var row SessionRow
	err := s.pool.DB().WithContext(ctx).Select("character_id").Where("sid = ?", sid).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if row.CharacterID == nil {
		return "", nil
	}
	return *row.CharacterID, nil
}

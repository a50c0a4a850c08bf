package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BaSui01/sessionctx/types"
)

// FileStore 基于文件的 Store 实现
// 适合单节点部署，跨进程写同一目录不安全
type FileStore struct {
	baseDir string
	records map[string]*record // 内存缓存
	core    mergeCore
	mu      sync.RWMutex
	closed  bool
}

// 新建文件会话存储器
func NewFileStore(config StoreConfig, opts ...Option) (*FileStore, error) {
	baseDir := filepath.Join(config.BaseDir, "sessions")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session store directory: %w", err)
	}

	store := &FileStore{
		baseDir: baseDir,
		records: make(map[string]*record),
		core:    newMergeCore(string(StoreTypeFile), config, buildOptions(opts)),
	}

	// 装入已存在的会话
	if err := store.loadFromDisk(); err != nil {
		return nil, fmt.Errorf("failed to load sessions from disk: %w", err)
	}

	return store, nil
}

// 从磁盘加载所有会话到内存
func (s *FileStore) loadFromDisk() error {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return nil // 尚无数据
	}
	if err != nil {
		return err
	}

	var records map[string]*record
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}

	if records != nil {
		s.records = records
	}
	return nil
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.baseDir, "index.json")
}

// saveToDisk 将全部会话写到磁盘
func (s *FileStore) saveToDisk(records map[string]*record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	// 原子写: 写入临时文件后重命名
	tempPath := s.indexPath() + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, s.indexPath())
}

// Close 关闭存储
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.saveToDisk(s.records)
}

// Ping 健康检查
func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Load 读取会话文档
func (s *FileStore) Load(ctx context.Context, sid string) (types.Document, error) {
	if err := validateSID(sid); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	r, ok := s.records[sid]
	if !ok {
		return nil, nil
	}
	return DecodeDocument(r.Payload)
}

// SavePatch 合并补丁并落盘; 落盘失败时内存状态不变
func (s *FileStore) SavePatch(ctx context.Context, sid string, patch types.Patch, opts ...SaveOption) error {
	if err := validateSID(sid); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	prev := s.records[sid]
	var current types.Document
	if prev != nil {
		doc, err := DecodeDocument(prev.Payload)
		if err != nil {
			return err
		}
		current = doc
	}

	data, err := s.core.apply(ctx, sid, current, patch)
	if err != nil {
		return err
	}

	next := make(map[string]*record, len(s.records)+1)
	for k, v := range s.records {
		next[k] = v
	}
	next[sid] = nextRecord(prev, data, applySaveOptions(opts), s.core.now())

	if err := s.saveToDisk(next); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", sid, err)
	}
	s.records = next
	return nil
}

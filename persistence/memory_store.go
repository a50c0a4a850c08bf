package persistence

import (
	"context"
	"sync"

	"github.com/BaSui01/sessionctx/types"
)

// MemoryStore 内存版 Store 实现
// 适合开发和测试，重启后数据丢失
type MemoryStore struct {
	records map[string]*record
	core    mergeCore
	mu      sync.RWMutex
	closed  bool
}

// NewMemoryStore 创建内存会话存储
func NewMemoryStore(config StoreConfig, opts ...Option) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*record),
		core:    newMergeCore(string(StoreTypeMemory), config, buildOptions(opts)),
	}
}

// Close 关闭存储
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping 健康检查
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Load 返回 sid 对应的已存文档
func (s *MemoryStore) Load(ctx context.Context, sid string) (types.Document, error) {
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

// SavePatch 将补丁合并进 sid 的文档
func (s *MemoryStore) SavePatch(ctx context.Context, sid string, patch types.Patch, opts ...SaveOption) error {
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
	s.records[sid] = nextRecord(prev, data, applySaveOptions(opts), s.core.now())
	return nil
}

// CharacterID 返回 sid 记录的角色，没有则为空
func (s *MemoryStore) CharacterID(sid string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.records[sid]; ok {
		return r.CharacterID
	}
	return ""
}

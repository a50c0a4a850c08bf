package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/sessionctx/card"
	"github.com/BaSui01/sessionctx/types"
)

// MergePolicy 决定 SavePatch 如何把补丁合并进已存文档
type MergePolicy string

const (
	// MergeDomain 同一顶层键两侧都是对象时合并一层，否则补丁值替换
	MergeDomain MergePolicy = "domain"
	// MergeShallow 补丁中出现的顶层键整体替换
	MergeShallow MergePolicy = "shallow"
)

// Compactor 压缩超出字节上限的文档，d 为本次写入的生效领域
type Compactor func(doc types.Document, d types.Domain) types.Document

// DefaultCompactor 只压缩生效领域的卡片
func DefaultCompactor(doc types.Document, d types.Domain) types.Document {
	return card.CompactDomain(doc, d)
}

// Merge 返回 current 按 policy 合并 patch 后的新文档，两个输入都不会被修改
func Merge(current types.Document, patch types.Patch, policy MergePolicy) types.Document {
	out := make(types.Document, len(current)+len(patch))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range patch {
		if policy != MergeShallow {
			pv, pok := v.(map[string]any)
			cv, cok := out[k].(map[string]any)
			if pok && cok {
				merged := make(map[string]any, len(cv)+len(pv))
				for ik, iv := range cv {
					merged[ik] = iv
				}
				for ik, iv := range pv {
					merged[ik] = iv
				}
				out[k] = merged
				continue
			}
		}
		out[k] = v
	}
	return out
}

// EncodeDocument 紧凑 JSON 形式，既是存储内容也是字节计量对象
func EncodeDocument(doc types.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DecodeDocument 解析已存载荷
func DecodeDocument(data []byte) (types.Document, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var doc types.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, types.NewError(types.ErrSerialization, "decode session document").WithCause(err)
	}
	return doc, nil
}

// normalizePatch 把结构体、类型化切片等转成普通 JSON 值，保证合并时看到的是 map
func normalizePatch(patch types.Patch) (types.Patch, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, types.NewError(types.ErrSerialization, "encode patch").WithCause(err)
	}
	var out types.Patch
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, types.NewError(types.ErrSerialization, "decode patch").WithCause(err)
	}
	return out, nil
}

// =============================================================================
// 各后端共用的合并核心
// =============================================================================

type mergeCore struct {
	backend   string
	policy    MergePolicy
	limit     int
	compactor Compactor
	observer  Observer
	logger    *zap.Logger
	now       func() time.Time
}

func newMergeCore(backend string, cfg StoreConfig, o *options) mergeCore {
	c := mergeCore{
		backend:  backend,
		policy:   cfg.MergePolicy,
		limit:    cfg.MaxPayloadBytes,
		observer: o.observer,
		logger:   o.logger.With(zap.String("component", "session_store"), zap.String("backend", backend)),
		now:      o.now,
	}
	if c.policy == "" {
		c.policy = MergeDomain
	}
	if c.limit <= 0 {
		c.limit = MaxPayloadBytes
	}
	if cfg.CompactOnOverflow {
		c.compactor = o.compactor
		if c.compactor == nil {
			c.compactor = DefaultCompactor
		}
	}
	return c
}

// apply 合并补丁并执行字节上限检查，返回待提交的编码文档
func (c mergeCore) apply(ctx context.Context, sid string, current types.Document, patch types.Patch) ([]byte, error) {
	if patch == nil {
		return nil, fmt.Errorf("%w: nil patch", ErrInvalidInput)
	}
	normalized, err := normalizePatch(patch)
	if err != nil {
		return nil, err
	}

	merged := Merge(current, normalized, c.policy)
	data, err := EncodeDocument(merged)
	if err != nil {
		return nil, types.NewError(types.ErrSerialization, "encode session document").WithCause(err).WithSession(sid)
	}
	if len(data) <= c.limit {
		return data, nil
	}

	if c.compactor == nil {
		return nil, &CapacityExceededError{SessionID: sid, Size: len(data), Limit: c.limit}
	}

	before := len(data)
	d := activeDomain(ctx, normalized, merged)
	data, err = EncodeDocument(c.compactor(merged, d))
	if err != nil {
		return nil, types.NewError(types.ErrSerialization, "encode compacted document").WithCause(err).WithSession(sid)
	}
	rescued := len(data) <= c.limit
	c.observer.ObserveCompaction(c.backend, rescued)
	if !rescued {
		c.logger.Warn("session payload over capacity after compaction",
			zap.String("sid", sid),
			zap.String("domain", d.Key()),
			zap.Int("bytes_before", before),
			zap.Int("bytes_after", len(data)),
			zap.Int("limit", c.limit),
		)
		return nil, &CapacityExceededError{SessionID: sid, Size: len(data), Limit: c.limit, Compacted: true}
	}

	c.logger.Info("session payload compacted",
		zap.String("sid", sid),
		zap.String("domain", d.Key()),
		zap.Int("bytes_before", before),
		zap.Int("bytes_after", len(data)),
	)
	return data, nil
}

// activeDomain 依次取 ctx 中引擎写入的领域、补丁里出现的领域键、文档里已有的领域载荷
func activeDomain(ctx context.Context, patch types.Patch, doc types.Document) types.Domain {
	if d, ok := types.DomainFrom(ctx); ok {
		return d
	}
	for _, d := range types.Domains {
		if _, ok := patch[d.Key()]; ok {
			return d
		}
	}
	for _, d := range types.Domains {
		if doc.Object(d.Key()) != nil {
			return d
		}
	}
	return types.DomainGeneric
}

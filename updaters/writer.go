package updaters

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/sessionctx/persistence"
	"github.com/BaSui01/sessionctx/types"
)

// Writer 把某个领域的模型回复转成落库补丁
type Writer struct {
	Domain types.Domain
	// Sanitize 提取前清洗回复，可为空
	Sanitize func(string) string
	Extract  func(string) (types.Patch, bool)
}

// Option 配置一次写入
type Option func(*writeOptions)

type writeOptions struct {
	characterID string
	logger      *zap.Logger
}

// WithCharacterID 在存储行上记录角色
func WithCharacterID(id string) Option {
	return func(o *writeOptions) { o.characterID = id }
}

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(o *writeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) writeOptions {
	o := writeOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// For 返回领域 d 的 Writer，generic 领域没有
func For(d types.Domain) (Writer, bool) {
	switch d {
	case types.DomainFinancial:
		return Financial, true
	case types.DomainTherapy:
		return Therapy, true
	default:
		return Writer{}, false
	}
}

// Write 执行领域 d 的 Writer，没有 Writer 的领域返回 false
func Write(ctx context.Context, store persistence.Store, d types.Domain, sid, text string, opts ...Option) (bool, error) {
	w, ok := For(d)
	if !ok {
		return false, nil
	}
	return w.Write(ctx, store, sid, text, opts...)
}

// Write 从 text 提取补丁并保存到领域键下
// 提取结果先与已存载荷合并，列表字段是追加而非替换；存储错误原样返回
func (w Writer) Write(ctx context.Context, store persistence.Store, sid, text string, opts ...Option) (bool, error) {
	o := buildOptions(opts)
	logger := o.logger.With(zap.String("component", "updaters"),
		zap.String("domain", string(w.Domain)),
		zap.String("session_id", sid))

	if w.Sanitize != nil {
		text = w.Sanitize(text)
	}
	if w.Extract == nil {
		return false, nil
	}
	patch, ok := w.Extract(text)
	if !ok {
		logger.Debug("no signal in reply")
		return false, nil
	}

	doc, err := store.Load(ctx, sid)
	if err != nil {
		return false, err
	}
	key := w.Domain.Key()
	payload := mergePayload(doc.Object(key), patch)

	var saveOpts []persistence.SaveOption
	if o.characterID != "" {
		saveOpts = append(saveOpts, persistence.WithCharacterID(o.characterID))
	}
	if err := store.SavePatch(ctx, sid, types.Patch{key: payload}, saveOpts...); err != nil {
		return false, err
	}

	logger.Debug("domain patch written", zap.Int("fields", len(patch)))
	return true, nil
}

// mergePayload 在 current 的副本上叠加 patch，列表去重追加，其余字段直接覆盖
func mergePayload(current map[string]any, patch types.Patch) map[string]any {
	out := make(map[string]any, len(current)+len(patch))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range patch {
		added, isList := toStrings(v)
		existing, wasList := toStrings(out[k])
		if isList && wasList {
			out[k] = appendUnique(existing, added...)
			continue
		}
		out[k] = v
	}
	return out
}

package card

import (
	"github.com/BaSui01/sessionctx/tokenizer"
	"github.com/BaSui01/sessionctx/types"
)

// 卡片字节上限，进程生命周期内不变
const (
	CardMax   = 2048
	PinsMax   = 5
	PinsFloor = 3
	FreshCap  = 800
	DigestCap = 1024

	DigestLineMax = 110
	BulletLineMax = 120
)

// Ellipsis 标记被截断的行
const Ellipsis = "…"

// 各领域载荷共用的卡片字段
const (
	FieldSceneDigest = "scene_digest"
	FieldFresh       = "fresh"
	FieldCallbacks   = "callbacks"
)

// Card 单个会话与领域无关的记忆卡片
type Card struct {
	SceneDigest string   `json:"scene_digest"`
	Fresh       []string `json:"fresh"`
	Callbacks   []string `json:"callbacks"`
}

// Clone 返回不与 c 共享切片的副本
func (c Card) Clone() Card {
	return Card{
		SceneDigest: c.SceneDigest,
		Fresh:       append([]string{}, c.Fresh...),
		Callbacks:   append([]string{}, c.Callbacks...),
	}
}

// Bytes 渲染后卡片的字节数
func (c Card) Bytes() int {
	return tokenizer.ByteSize(RenderBlock(c))
}

// IsEmpty 卡片渲染结果是否为空
func (c Card) IsEmpty() bool {
	return RenderBlock(c) == ""
}

// FromPayload 从领域载荷中读出卡片字段，缺失或类型不符的字段按空处理
func FromPayload(payload map[string]any) Card {
	var c Card
	if payload == nil {
		return c
	}
	c.SceneDigest, _ = payload[FieldSceneDigest].(string)
	c.Fresh = stringSlice(payload[FieldFresh])
	c.Callbacks = stringSlice(payload[FieldCallbacks])
	return c
}

// FromDocument 读取 doc 中领域 d 的卡片
func FromDocument(doc types.Document, d types.Domain) Card {
	return FromPayload(doc.Object(d.Key()))
}

// ApplyTo 把卡片字段写回 payload 的副本，其余字段保持不变。
// 切片总是写成数组，不会写成 null。
func (c Card) ApplyTo(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		out[k] = v
	}
	out[FieldSceneDigest] = c.SceneDigest
	out[FieldFresh] = toAnySlice(c.Fresh)
	out[FieldCallbacks] = toAnySlice(c.Callbacks)
	return out
}

// ActiveKey 返回领域 d 实际生效的载荷键：有自己的载荷用自己的，否则回退到 generic
func ActiveKey(doc types.Document, d types.Domain) string {
	if doc.Object(d.Key()) != nil {
		return d.Key()
	}
	return types.DomainGeneric.Key()
}

func stringSlice(v any) []string {
	switch xs := v.(type) {
	case []string:
		return append([]string{}, xs...)
	case []any:
		out := make([]string, 0, len(xs))
		for _, x := range xs {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toAnySlice(xs []string) []any {
	out := make([]any, 0, len(xs))
	for _, s := range xs {
		out = append(out, s)
	}
	return out
}

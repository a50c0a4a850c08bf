package card

import (
	"strings"

	"github.com/BaSui01/sessionctx/tokenizer"
	"github.com/BaSui01/sessionctx/types"
)

// Result 一次重平衡的结果与各步骤计数
type Result struct {
	Card          Card
	PinsTruncated int
	FreshEvicted  int
	PinsPopped    int
	DigestDropped int
	BytesBefore   int
	BytesAfter    int
}

// Rebalance 压缩卡片，使其在常见情况下不超过 CardMax：
//
//  1. callbacks 截断为前 PinsMax 条；
//  2. fresh 块超过 FreshCap 时，把最旧的 fresh 归档进摘要；
//  3. 收紧摘要；
//  4. 卡片仍超过 CardMax 且 callbacks 多于 PinsFloor 时，弹出最后一条。
//
// 摘要本身超过 CardMax 时结果仍然超限，摘要行不会被丢弃。
func Rebalance(c Card) Card {
	return RebalanceWithResult(c).Card
}

// RebalanceWithResult 同 Rebalance，并返回各步骤计数
func RebalanceWithResult(c Card) Result {
	res := Result{BytesBefore: c.Bytes()}
	c = c.Clone()

	if len(c.Callbacks) > PinsMax {
		res.PinsTruncated = len(c.Callbacks) - PinsMax
		c.Callbacks = c.Callbacks[:PinsMax]
	}

	for len(c.Fresh) > 0 && tokenizer.ByteSize(renderFresh(c.Fresh)) > FreshCap {
		c.SceneDigest = AddBullet(c.SceneDigest, c.Fresh[0])
		c.Fresh = c.Fresh[1:]
		res.FreshEvicted++
	}

	c.SceneDigest = TightenDigest(c.SceneDigest)

	for c.Bytes() > CardMax && len(c.Callbacks) > PinsFloor {
		c.Callbacks = c.Callbacks[:len(c.Callbacks)-1]
		res.PinsPopped++
	}

	res.Card = c
	res.BytesAfter = c.Bytes()
	return res
}

// Compact 先执行 Rebalance；卡片仍超过 CardMax 时丢弃最旧的摘要行直到摘要
// 不超过 DigestCap。只用于容量溢出恢复，常规轮次与手动重平衡不丢摘要。
func Compact(c Card) Result {
	res := RebalanceWithResult(c)
	if res.BytesAfter <= CardMax {
		return res
	}
	lines := DigestLines(res.Card.SceneDigest)
	for len(lines) > 0 && tokenizer.ByteSize(strings.Join(lines, "\n")) > DigestCap {
		lines = lines[1:]
		res.DigestDropped++
	}
	res.Card.SceneDigest = strings.Join(lines, "\n")
	for res.Card.Bytes() > CardMax && len(res.Card.Callbacks) > PinsFloor {
		res.Card.Callbacks = res.Card.Callbacks[:len(res.Card.Callbacks)-1]
		res.PinsPopped++
	}
	res.BytesAfter = res.Card.Bytes()
	return res
}

// CompactDomain 只压缩 doc 中领域 d 的生效载荷（无载荷时回退 generic），
// 返回新文档；其他领域载荷与领域专属字段保持不变。
func CompactDomain(doc types.Document, d types.Domain) types.Document {
	if doc == nil {
		return nil
	}
	out := doc.Clone()
	key := ActiveKey(out, d)
	payload := out.Object(key)
	if payload == nil {
		return out
	}
	res := Compact(FromPayload(payload))
	out[key] = res.Card.ApplyTo(payload)
	return out
}

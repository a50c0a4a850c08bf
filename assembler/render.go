package assembler

import (
	"encoding/json"
	"strings"

	"github.com/BaSui01/sessionctx/card"
	"github.com/BaSui01/sessionctx/types"
)

// 领域摘要行前缀
const (
	PrefixProfile  = "profile="
	PrefixLastPlan = "last_plan="
	PrefixIntent   = "intent="
)

// RenderSessionBlock 渲染领域 d 的活动载荷：先是领域摘要行，再是卡片块
// 领域没有载荷时使用 generic 卡片，不输出摘要行
func RenderSessionBlock(d types.Domain, doc types.Document) string {
	payload := doc.Object(d.Key())
	if payload == nil {
		return card.RenderBlock(card.FromPayload(doc.Object(types.DomainGeneric.Key())))
	}

	var parts []string
	switch d {
	case types.DomainFinancial:
		if v := summaryValue(payload["profile"]); v != "" {
			parts = append(parts, PrefixProfile+v)
		}
		if v := summaryValue(payload["last_plan_id"]); v != "" {
			parts = append(parts, PrefixLastPlan+v)
		}
	case types.DomainTherapy:
		if v := summaryValue(payload["intent"]); v != "" {
			parts = append(parts, PrefixIntent+v)
		}
	}

	if block := card.RenderBlock(card.FromPayload(payload)); block != "" {
		parts = append(parts, block)
	}
	return strings.Join(parts, "\n")
}

// summaryValue 把载荷字段压成一行，非字符串值输出紧凑 JSON
func summaryValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.Join(strings.Fields(x), " ")
	default:
		data, err := json.Marshal(x)
		if err != nil || string(data) == "null" {
			return ""
		}
		return string(data)
	}
}

package session

import (
	"strings"

	"github.com/google/uuid"

	"github.com/BaSui01/sessionctx/types"
)

// bridgePrefix "bw:<agentKey>:<sid>" 形式的会话 id 前缀
const bridgePrefix = "bw:"

// NormalizeSessionID 去掉 "bw:<agentKey>:" 包装，其他 id 原样返回
func NormalizeSessionID(raw string) string {
	if !strings.HasPrefix(raw, bridgePrefix) {
		return raw
	}
	parts := strings.Split(raw, ":")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[2:], ":")
}

// DomainOf 按 id 前缀判断会话领域
func DomainOf(sid string) types.Domain {
	switch {
	case strings.HasPrefix(sid, "financial_"), strings.HasPrefix(sid, "finance_"):
		return types.DomainFinancial
	case strings.HasPrefix(sid, "therapy_"):
		return types.DomainTherapy
	default:
		return types.DomainGeneric
	}
}

// DetectDomain 按请求提示字段（domain、chat type 等）判断领域，financial 优先于 therapy
func DetectDomain(hints ...string) types.Domain {
	lowered := make([]string, 0, len(hints))
	for _, h := range hints {
		if h != "" {
			lowered = append(lowered, strings.ToLower(h))
		}
	}
	for _, d := range []types.Domain{types.DomainFinancial, types.DomainTherapy} {
		for _, h := range lowered {
			if strings.Contains(h, string(d)) {
				return d
			}
		}
	}
	return types.DomainGeneric
}

// NewSessionID 生成新 id，其前缀经 DomainOf 映射回 d
func NewSessionID(d types.Domain) string {
	return d.Key() + "_" + uuid.NewString()
}

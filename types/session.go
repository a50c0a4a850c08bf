package types

import (
	"encoding/json"
	"strings"
)

// Domain 会话当前生效载荷所属的对话领域
type Domain string

const (
	DomainFinancial Domain = "financial"
	DomainTherapy   Domain = "therapy"
	DomainGeneric   Domain = "generic"
)

// 领域载荷之外的顶层文档键
const (
	KeyStats       = "stats"
	KeyUsercharID  = "usercharId"
	KeyCanonicalID = "canonicalId"
)

// Domains 按渲染优先级列出全部领域
var Domains = []Domain{DomainFinancial, DomainTherapy, DomainGeneric}

// ParseDomain 宽松解析领域名，无法识别时回落到 generic
func ParseDomain(s string) Domain {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(DomainFinancial), "finance":
		return DomainFinancial
	case string(DomainTherapy):
		return DomainTherapy
	default:
		return DomainGeneric
	}
}

// Key 领域载荷在文档中的键
func (d Domain) Key() string {
	if d == "" {
		return string(DomainGeneric)
	}
	return string(d)
}

// Document 一个会话落库的完整 JSON 对象
type Document map[string]any

// Patch 由存储合并进 Document 的局部更新
type Patch map[string]any

// Object 返回 key 处的 JSON 对象，键不存在或不是对象时返回 nil
func (d Document) Object(key string) map[string]any {
	if d == nil {
		return nil
	}
	m, _ := d[key].(map[string]any)
	return m
}

// Decode 把 key 处的值重新编码后解到 out，键不存在时返回 false
func (d Document) Decode(key string, out any) (bool, error) {
	v, ok := d[key]
	if !ok || v == nil {
		return false, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Clone 经 JSON 往返得到深拷贝
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		out := make(Document, len(d))
		for k, v := range d {
			out[k] = v
		}
		return out
	}
	var out Document
	_ = json.Unmarshal(data, &out)
	return out
}

// SessionStats 每轮更新的会话轮次统计
type SessionStats struct {
	TurnIdx               int  `json:"turn_idx"`
	LastRefreshTurn       int  `json:"last_refresh_turn"`
	HighPressureStreak    int  `json:"high_pressure_streak"`
	LastSessionBlockBytes *int `json:"last_session_block_bytes,omitempty"`
}

// StatsFrom 读取文档里的统计，缺失或格式不对时返回零值
func StatsFrom(doc Document) SessionStats {
	var s SessionStats
	if _, err := doc.Decode(KeyStats, &s); err != nil {
		return SessionStats{}
	}
	return s
}

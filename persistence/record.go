package persistence

import (
	"encoding/json"
	"time"
)

// record 内存、文件与 redis 后端保存的信封，与 session_memory 行的字段一一对应
type record struct {
	Payload     json.RawMessage `json:"payload"`
	CharacterID string          `json:"character_id,omitempty"`
	UpdatedAt   time.Time       `json:"ts_updated"`
}

// nextRecord 构建替换 prev 的记录，未给出新角色 id 时沿用旧值
func nextRecord(prev *record, payload []byte, so saveOptions, now time.Time) *record {
	r := &record{Payload: payload, UpdatedAt: now.UTC()}
	if prev != nil {
		r.CharacterID = prev.CharacterID
	}
	if so.characterID != "" {
		r.CharacterID = so.characterID
	}
	return r
}

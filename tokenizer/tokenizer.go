package tokenizer

import (
	"strings"
	"sync"
)

// Counter 把文本换算为 token 数，空串返回 0
type Counter interface {
	CountTokens(text string) int
	Name() string
}

// 全局计数器注册表
var (
	modelCounters   = make(map[string]Counter)
	modelCountersMu sync.RWMutex
)

// Register 为模型名绑定计数器
func Register(model string, c Counter) {
	modelCountersMu.Lock()
	defer modelCountersMu.Unlock()
	modelCounters[model] = c
}

// Lookup 查找模型的计数器，找不到时按前缀匹配（"gpt-4o" 可匹配 "gpt-4o-mini"）
func Lookup(model string) (Counter, bool) {
	modelCountersMu.RLock()
	defer modelCountersMu.RUnlock()

	if c, ok := modelCounters[model]; ok {
		return c, true
	}
	for prefix, c := range modelCounters {
		if strings.HasPrefix(model, prefix) {
			return c, true
		}
	}
	return nil, false
}

// ForModel 返回模型的计数器，未注册或模型名为空时返回字节估算器
func ForModel(model string) Counter {
	if model == "" {
		return NewByteEstimator()
	}
	if c, ok := Lookup(model); ok {
		return c
	}
	return NewByteEstimator()
}

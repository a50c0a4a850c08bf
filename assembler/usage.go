package assembler

import (
	"github.com/BaSui01/sessionctx/tokenizer"
)

// 默认预算：4k 上下文，回复预留 384 token
const (
	DefaultCtxMax        = 4096
	DefaultReserveOutput = 384
)

// UsageInput 一轮中争抢提示词预算的全部内容
type UsageInput struct {
	SystemText        string
	UserText          string
	SessionBlock      string
	PrevAssistantText string
	CtxMax            int
	ReserveOutput     int
}

// Usage 占用比例的明细
type Usage struct {
	Budget int     `json:"budget"`
	Used   int     `json:"used"`
	Share  float64 `json:"share"`
}

// ComputeUsage 扣除回复预留、system 与用户输入后，计算会话块与上一轮回复的占用：
//
//	budget = max(1, (ctx_max - reserve_output) - tok(system) - tok(user))
//	used   = tok(session_block) + tok(prev_assistant)
func ComputeUsage(counter tokenizer.Counter, in UsageInput) Usage {
	if counter == nil {
		counter = tokenizer.NewByteEstimator()
	}
	budget := (in.CtxMax - in.ReserveOutput) - counter.CountTokens(in.SystemText) - counter.CountTokens(in.UserText)
	if budget < 1 {
		budget = 1
	}
	used := counter.CountTokens(in.SessionBlock) + counter.CountTokens(in.PrevAssistantText)
	return Usage{
		Budget: budget,
		Used:   used,
		Share:  float64(used) / float64(budget),
	}
}

// ComputeUsageShare 使用 4 字节/token 估算的 ComputeUsage
func ComputeUsageShare(in UsageInput) float64 {
	return ComputeUsage(nil, in).Share
}

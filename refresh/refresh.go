package refresh

import (
	"github.com/BaSui01/sessionctx/card"
	"github.com/BaSui01/sessionctx/types"
)

// 压力连续轮数与卡片年龄触发器的默认值
const (
	DefaultStreakTurns       = 3
	DefaultMaxAgeTurns       = 12
	DefaultPressureThreshold = 0.8
)

// Trigger 建议刷新的触发条件
type Trigger string

const (
	TriggerNone     Trigger = ""
	TriggerSize     Trigger = "size"
	TriggerPressure Trigger = "pressure_streak"
	TriggerAge      Trigger = "age"
)

// Policy 刷新判定的可调参数
type Policy struct {
	// StreakTurns 即 N：连续高压轮数达到后强制刷新
	StreakTurns int `yaml:"streak_turns" json:"streak_turns"`
	// MaxAgeTurns 即 M：距上次刷新的轮数达到后强制刷新
	MaxAgeTurns int `yaml:"max_age_turns" json:"max_age_turns"`
	// PressureThreshold 计为高压的预算占用比例
	PressureThreshold float64 `yaml:"pressure_threshold" json:"pressure_threshold"`
	// CardMax 渲染后卡片超过该字节数即强制刷新
	CardMax int `yaml:"card_max" json:"card_max"`
}

// DefaultPolicy N=3、M=12、阈值 0.8、card.CardMax
func DefaultPolicy() Policy {
	return Policy{
		StreakTurns:       DefaultStreakTurns,
		MaxAgeTurns:       DefaultMaxAgeTurns,
		PressureThreshold: DefaultPressureThreshold,
		CardMax:           card.CardMax,
	}
}

// Option 调整 Policy
type Option func(*Policy)

// WithStreakTurns 覆盖 N
func WithStreakTurns(n int) Option {
	return func(p *Policy) { p.StreakTurns = n }
}

// WithMaxAgeTurns 覆盖 M
func WithMaxAgeTurns(m int) Option {
	return func(p *Policy) { p.MaxAgeTurns = m }
}

// WithPressureThreshold 覆盖高压阈值
func WithPressureThreshold(th float64) Option {
	return func(p *Policy) { p.PressureThreshold = th }
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.StreakTurns <= 0 {
		p.StreakTurns = d.StreakTurns
	}
	if p.MaxAgeTurns <= 0 {
		p.MaxAgeTurns = d.MaxAgeTurns
	}
	if p.PressureThreshold <= 0 {
		p.PressureThreshold = d.PressureThreshold
	}
	if p.CardMax <= 0 {
		p.CardMax = d.CardMax
	}
	return p
}

// Decision 一次判定的结果
// Trigger 为最先命中的条件，检查顺序为卡片大小、连续高压、卡片年龄
type Decision struct {
	Refresh bool
	Trigger Trigger
	// TurnsSinceRefresh 已计入即将开始的这一轮
	TurnsSinceRefresh int
	NextStreak        int
}

// Decide 计算三个触发器
// 调用时本轮统计尚未推进，因此连续高压轮数与年龄都按当前值 +1 计算
func (p Policy) Decide(stats types.SessionStats, usageShare float64, sessionBlockBytes int) Decision {
	p = p.normalized()

	d := Decision{
		TurnsSinceRefresh: stats.TurnIdx + 1 - stats.LastRefreshTurn,
		NextStreak:        stats.HighPressureStreak + 1,
	}
	switch {
	case sessionBlockBytes > p.CardMax:
		d.Trigger = TriggerSize
	case usageShare >= p.PressureThreshold && d.NextStreak >= p.StreakTurns:
		d.Trigger = TriggerPressure
	case d.TurnsSinceRefresh >= p.MaxAgeTurns:
		d.Trigger = TriggerAge
	}
	d.Refresh = d.Trigger != TriggerNone
	return d
}

// NextStats 推进 turn_idx 与连续高压轮数
func (p Policy) NextStats(stats types.SessionStats, usageShare float64) types.SessionStats {
	p = p.normalized()
	next := stats
	next.TurnIdx++
	if usageShare < p.PressureThreshold {
		next.HighPressureStreak = 0
	} else {
		next.HighPressureStreak++
	}
	return next
}

// ShouldRefresh 以 DefaultPolicy 加 opts 判定是否有触发器命中
func ShouldRefresh(stats types.SessionStats, usageShare float64, sessionBlockBytes int, opts ...Option) bool {
	p := DefaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return p.Decide(stats, usageShare, sessionBlockBytes).Refresh
}

// NextStatsBeforeRefresh 按默认高压阈值推进统计
func NextStatsBeforeRefresh(stats types.SessionStats, usageShare float64) types.SessionStats {
	return DefaultPolicy().NextStats(stats, usageShare)
}

// MarkRefreshed 记录卡片在当前轮重新生成
func MarkRefreshed(stats types.SessionStats, sessionBlockBytes int) types.SessionStats {
	next := stats
	next.LastRefreshTurn = stats.TurnIdx
	next.HighPressureStreak = 0
	b := sessionBlockBytes
	next.LastSessionBlockBytes = &b
	return next
}

package types

import "context"

// contextKey context.Context 中的值键
type contextKey string

const (
	keyDomain  contextKey = "session_domain"
	keyTurnIdx contextKey = "session_turn_idx"
)

// WithDomain 在 ctx 中记录本轮的活动领域
func WithDomain(ctx context.Context, d Domain) context.Context {
	return context.WithValue(ctx, keyDomain, d)
}

// DomainFrom 取出 ctx 中的活动领域
func DomainFrom(ctx context.Context) (Domain, bool) {
	v, ok := ctx.Value(keyDomain).(Domain)
	return v, ok && v != ""
}

// WithTurnIdx 记录正在保存的轮次
func WithTurnIdx(ctx context.Context, idx int) context.Context {
	return context.WithValue(ctx, keyTurnIdx, idx)
}

// TurnIdx 取出 ctx 中的轮次
func TurnIdx(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(keyTurnIdx).(int)
	return v, ok
}

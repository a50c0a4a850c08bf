package session

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/sessionctx/assembler"
	"github.com/BaSui01/sessionctx/card"
	"github.com/BaSui01/sessionctx/persistence"
	"github.com/BaSui01/sessionctx/refresh"
	"github.com/BaSui01/sessionctx/types"
	"github.com/BaSui01/sessionctx/updaters"
)

// 上报给 Recorder 的补丁结果标签
const (
	PatchWritten  = "written"
	PatchNoSignal = "no_signal"
	PatchCapacity = "capacity_exceeded"
	PatchError    = "error"
)

// Recorder 接收轮次指标，由 internal/metrics.Collector 实现
type Recorder interface {
	RecordTurn(domain string, usageShare float64, blockBytes int)
	RecordRefreshDecision(domain, trigger string)
	RecordRebalance(domain string, freshEvicted, pinsTruncated, pinsPopped, digestDropped int)
	RecordPatch(domain, result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTurn(string, float64, int)            {}
func (nopRecorder) RecordRefreshDecision(string, string)       {}
func (nopRecorder) RecordRebalance(string, int, int, int, int) {}
func (nopRecorder) RecordPatch(string, string)                 {}

// TurnInput PrepareTurn 一轮所需的全部输入
type TurnInput struct {
	// 可带 "bw:<agentKey>:" 前缀
	SessionID string
	// 为空时取 DomainOf(SessionID)
	Domain types.Domain

	SystemText        string
	UserText          string
	PrevAssistantText string

	// 身份键，非空时每轮写入文档
	UsercharID  string
	CanonicalID string
	CharacterID string

	CtxMax        int
	ReserveOutput int
}

// TurnPlan 一轮的提示词以及为其完成的记账
type TurnPlan struct {
	SessionID string
	Domain    types.Domain
	Prompt    string
	Assembled *assembler.Assembled
	Decision  refresh.Decision
	// 本轮保存的统计
	Stats types.SessionStats
	// 本轮刷新了卡片时非空
	Rebalance *card.Result
}

// TurnOutcome CompleteTurn 对模型回复的处理结果
type TurnOutcome struct {
	// 清洗后的模型回复
	Reply   string
	Written bool
	// 补丁超出容量、改为强制压缩当前卡片时置位
	RefreshRequired bool
	Rebalance       *card.Result
	// DroppedPatch 容量超限时未能落库的领域补丁，调用方可自行留存或重放
	DroppedPatch types.Patch
}

// Generator 根据提示词生成模型回复
type Generator func(ctx context.Context, prompt string) (string, error)

// Engine 在 Store 之上驱动每轮的记忆循环
type Engine struct {
	store     persistence.Store
	assembler *assembler.Assembler
	policy    refresh.Policy
	locker    *Locker
	recorder  Recorder
	logger    *zap.Logger
	tracer    trace.Tracer

	asmOpts []assembler.Option
}

// Option 配置 Engine
type Option func(*Engine)

// WithPolicy 设置刷新策略
func WithPolicy(p refresh.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithAssemblerOptions 透传给提示词组装器
func WithAssemblerOptions(opts ...assembler.Option) Option {
	return func(e *Engine) { e.asmOpts = append(e.asmOpts, opts...) }
}

// WithLocker 设置 RunTurn 使用的会话锁
func WithLocker(l *Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine 在 store 上创建 Engine
func NewEngine(store persistence.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		policy:   refresh.DefaultPolicy(),
		locker:   NewLocker(),
		recorder: nopRecorder{},
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("github.com/BaSui01/sessionctx/session"),
	}
	for _, opt := range opts {
		opt(e)
	}
	base := e.logger
	e.logger = base.With(zap.String("component", "session_engine"))
	e.assembler = assembler.New(store, append([]assembler.Option{assembler.WithLogger(base)}, e.asmOpts...)...)
	return e
}

// Locker 返回 RunTurn 使用的锁
func (e *Engine) Locker() *Locker {
	return e.locker
}

// PrepareTurn 组装提示词、推进统计并判断是否刷新
// 刷新时对当前卡片执行 Rebalance，与刷新后的统计一起保存；否则只保存统计与身份键
func (e *Engine) PrepareTurn(ctx context.Context, in TurnInput) (*TurnPlan, error) {
	sid := NormalizeSessionID(in.SessionID)
	if sid == "" {
		return nil, fmt.Errorf("%w: empty session id", persistence.ErrInvalidInput)
	}
	d := in.Domain
	if d == "" {
		d = DomainOf(sid)
	}

	ctx = types.WithDomain(ctx, d)
	ctx, span := e.tracer.Start(ctx, "session.prepare_turn",
		trace.WithAttributes(
			attribute.String("session.id", sid),
			attribute.String("session.domain", d.Key()),
		),
	)
	defer span.End()

	asm, err := e.assembler.Assemble(ctx, d, assembler.AssembleInput{
		SessionID:         sid,
		SystemText:        in.SystemText,
		UserText:          in.UserText,
		PrevAssistantText: in.PrevAssistantText,
		CtxMax:            in.CtxMax,
		ReserveOutput:     in.ReserveOutput,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	stats := types.StatsFrom(asm.State)
	next := e.policy.NextStats(stats, asm.UsageShare)
	decision := e.policy.Decide(stats, asm.UsageShare, asm.SessionBlockBytes)

	plan := &TurnPlan{
		SessionID: sid,
		Domain:    d,
		Prompt:    asm.Prompt,
		Assembled: asm,
		Decision:  decision,
		Stats:     next,
	}

	patch := identityPatch(in)
	if decision.Refresh {
		key := card.ActiveKey(asm.State, d)
		payload := asm.State.Object(key)
		res := card.RebalanceWithResult(card.FromPayload(payload))
		patch[key] = res.Card.ApplyTo(payload)
		plan.Stats = refresh.MarkRefreshed(next, asm.SessionBlockBytes)
		plan.Rebalance = &res
		e.recorder.RecordRebalance(d.Key(), res.FreshEvicted, res.PinsTruncated, res.PinsPopped, res.DigestDropped)
	}
	patch[types.KeyStats] = plan.Stats

	if err := e.store.SavePatch(types.WithTurnIdx(ctx, plan.Stats.TurnIdx), sid, patch, saveOptions(in.CharacterID)...); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("save turn state %s: %w", sid, err)
	}

	e.recorder.RecordTurn(d.Key(), asm.UsageShare, asm.SessionBlockBytes)
	e.recorder.RecordRefreshDecision(d.Key(), string(decision.Trigger))
	span.SetAttributes(
		attribute.Bool("session.refresh", decision.Refresh),
		attribute.String("session.refresh_trigger", string(decision.Trigger)),
	)

	fields := []zap.Field{
		zap.String("sid", sid),
		zap.String("domain", d.Key()),
		zap.Int("turn_idx", plan.Stats.TurnIdx),
		zap.Int("session_bytes", asm.SessionBlockBytes),
		zap.Float64("usage_share", asm.UsageShare),
	}
	if decision.Refresh {
		e.logger.Info("session card refreshed", append(fields,
			zap.String("trigger", string(decision.Trigger)),
			zap.Int("bytes_after", plan.Rebalance.BytesAfter),
		)...)
	} else {
		e.logger.Debug("turn prepared", fields...)
	}
	return plan, nil
}

// CompleteTurn 清洗模型回复并执行领域补丁写入
//
// 容量超限不作为错误返回：当前卡片改为执行 card.Compact 后保存，结果中置 RefreshRequired。
// 此时本轮抽取的补丁不会落库，原样放在 TurnOutcome.DroppedPatch 中。
func (e *Engine) CompleteTurn(ctx context.Context, sid string, d types.Domain, modelText string, opts ...updaters.Option) (*TurnOutcome, error) {
	sid = NormalizeSessionID(sid)
	if sid == "" {
		return nil, fmt.Errorf("%w: empty session id", persistence.ErrInvalidInput)
	}
	if d == "" {
		d = DomainOf(sid)
	}

	ctx = types.WithDomain(ctx, d)
	ctx, span := e.tracer.Start(ctx, "session.complete_turn",
		trace.WithAttributes(
			attribute.String("session.id", sid),
			attribute.String("session.domain", d.Key()),
		),
	)
	defer span.End()

	out := &TurnOutcome{Reply: modelText}
	w, ok := updaters.For(d)
	if !ok {
		return out, nil
	}
	if w.Sanitize != nil {
		out.Reply = w.Sanitize(modelText)
	}

	opts = append([]updaters.Option{updaters.WithLogger(e.logger)}, opts...)
	written, err := w.Write(ctx, e.store, sid, modelText, opts...)
	switch {
	case err == nil:
		out.Written = written
		if written {
			e.recorder.RecordPatch(d.Key(), PatchWritten)
		} else {
			e.recorder.RecordPatch(d.Key(), PatchNoSignal)
		}
		return out, nil

	case errors.Is(err, persistence.ErrCapacityExceeded):
		e.recorder.RecordPatch(d.Key(), PatchCapacity)
		e.logger.Warn("domain patch over capacity, forcing rebalance",
			zap.String("sid", sid), zap.String("domain", d.Key()), zap.Error(err))
		if w.Extract != nil {
			if patch, ok := w.Extract(out.Reply); ok {
				out.DroppedPatch = patch
			}
		}
		res, rerr := e.rebalanceActive(ctx, sid, d, card.Compact)
		if rerr != nil {
			span.RecordError(rerr)
			return nil, rerr
		}
		out.RefreshRequired = true
		out.Rebalance = res
		return out, nil

	default:
		e.recorder.RecordPatch(d.Key(), PatchError)
		span.RecordError(err)
		return nil, err
	}
}

// RunTurn 在会话锁内依次执行 PrepareTurn、gen 与 CompleteTurn
func (e *Engine) RunTurn(ctx context.Context, in TurnInput, gen Generator) (*TurnPlan, *TurnOutcome, error) {
	sid := NormalizeSessionID(in.SessionID)
	if sid == "" {
		return nil, nil, fmt.Errorf("%w: empty session id", persistence.ErrInvalidInput)
	}
	unlock, err := e.locker.Lock(ctx, sid)
	if err != nil {
		return nil, nil, fmt.Errorf("lock session %s: %w", sid, err)
	}
	defer unlock()

	plan, err := e.PrepareTurn(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	reply, err := gen(ctx, plan.Prompt)
	if err != nil {
		return plan, nil, fmt.Errorf("generate reply: %w", err)
	}

	var opts []updaters.Option
	if in.CharacterID != "" {
		opts = append(opts, updaters.WithCharacterID(in.CharacterID))
	}
	outcome, err := e.CompleteTurn(ctx, plan.SessionID, plan.Domain, reply, opts...)
	if err != nil {
		return plan, nil, err
	}
	return plan, outcome, nil
}

// Rebalance 不看刷新触发条件，对 sid 的当前卡片执行 card.RebalanceWithResult 并保存
// 摘要行一条不丢，统计不变
func (e *Engine) Rebalance(ctx context.Context, sid string, d types.Domain) (*card.Result, error) {
	sid = NormalizeSessionID(sid)
	if sid == "" {
		return nil, fmt.Errorf("%w: empty session id", persistence.ErrInvalidInput)
	}
	if d == "" {
		d = DomainOf(sid)
	}
	return e.rebalanceActive(types.WithDomain(ctx, d), sid, d, card.RebalanceWithResult)
}

// rebalanceActive 对当前领域载荷执行 fn 并保存
// 手动刷新传 card.RebalanceWithResult，容量超限恢复传 card.Compact
func (e *Engine) rebalanceActive(ctx context.Context, sid string, d types.Domain, fn func(card.Card) card.Result) (*card.Result, error) {
	doc, err := e.store.Load(ctx, sid)
	if err != nil {
		return nil, err
	}
	key := card.ActiveKey(doc, d)
	payload := doc.Object(key)
	res := fn(card.FromPayload(payload))
	if err := e.store.SavePatch(ctx, sid, types.Patch{key: res.Card.ApplyTo(payload)}); err != nil {
		return nil, fmt.Errorf("save rebalanced card %s: %w", sid, err)
	}
	e.recorder.RecordRebalance(d.Key(), res.FreshEvicted, res.PinsTruncated, res.PinsPopped, res.DigestDropped)
	return &res, nil
}

func identityPatch(in TurnInput) types.Patch {
	patch := types.Patch{}
	if in.UsercharID != "" {
		patch[types.KeyUsercharID] = in.UsercharID
	}
	if in.CanonicalID != "" {
		patch[types.KeyCanonicalID] = in.CanonicalID
	}
	return patch
}

func saveOptions(characterID string) []persistence.SaveOption {
	if characterID == "" {
		return nil
	}
	return []persistence.SaveOption{persistence.WithCharacterID(characterID)}
}

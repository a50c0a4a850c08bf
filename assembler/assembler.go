package assembler

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/sessionctx/persistence"
	"github.com/BaSui01/sessionctx/tokenizer"
	"github.com/BaSui01/sessionctx/types"
)

// AssembleInput 一轮对话的提示词素材
type AssembleInput struct {
	SessionID         string
	SystemText        string
	UserText          string
	PrevAssistantText string

	// 为正时覆盖 Assembler 的预算
	CtxMax        int
	ReserveOutput int
}

// Assembled 提示词以及刷新判定需要的度量
type Assembled struct {
	Prompt            string
	SessionBlock      string
	SessionBlockBytes int
	UsageShare        float64
	Usage             Usage
	// State 读到的文档，新会话为 nil
	State types.Document
}

// Assembler 读取会话状态并拼装提示词
type Assembler struct {
	store         persistence.Store
	counter       tokenizer.Counter
	ctxMax        int
	reserveOutput int
	logger        *zap.Logger
	tracer        trace.Tracer
}

// Option 配置 Assembler
type Option func(*Assembler)

// WithBudget 设置模型上下文大小与回复预留 token
func WithBudget(ctxMax, reserveOutput int) Option {
	return func(a *Assembler) {
		a.ctxMax = ctxMax
		a.reserveOutput = reserveOutput
	}
}

// WithCounter 替换 token 计数器，例如 tokenizer.ForModel(model)
func WithCounter(c tokenizer.Counter) Option {
	return func(a *Assembler) {
		if c != nil {
			a.counter = c
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New 创建读取 store 的 Assembler
func New(store persistence.Store, opts ...Option) *Assembler {
	a := &Assembler{
		store:         store,
		counter:       tokenizer.NewByteEstimator(),
		ctxMax:        DefaultCtxMax,
		reserveOutput: DefaultReserveOutput,
		logger:        zap.NewNop(),
		tracer:        otel.Tracer("github.com/BaSui01/sessionctx/assembler"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "assembler"))
	return a
}

// AssembleFinancialPrompt 基于财务载荷拼装提示词
func (a *Assembler) AssembleFinancialPrompt(ctx context.Context, in AssembleInput) (*Assembled, error) {
	return a.Assemble(ctx, types.DomainFinancial, in)
}

// Assemble 读取会话并渲染领域 d 的会话块，计算预算占用
// 按 system、会话块、上一轮回复、用户输入的顺序以空行拼接，跳过空段
func (a *Assembler) Assemble(ctx context.Context, d types.Domain, in AssembleInput) (*Assembled, error) {
	ctx, span := a.tracer.Start(ctx, "assembler.assemble",
		trace.WithAttributes(
			attribute.String("session.id", in.SessionID),
			attribute.String("session.domain", d.Key()),
		),
	)
	defer span.End()

	doc, err := a.store.Load(ctx, in.SessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load session %s: %w", in.SessionID, err)
	}

	block := RenderSessionBlock(d, doc)
	usage := ComputeUsage(a.counter, a.usageInput(in, block))

	out := &Assembled{
		Prompt:            JoinPrompt(in.SystemText, block, in.PrevAssistantText, in.UserText),
		SessionBlock:      block,
		SessionBlockBytes: tokenizer.ByteSize(block),
		UsageShare:        usage.Share,
		Usage:             usage,
		State:             doc,
	}

	span.SetAttributes(
		attribute.Int("session.block_bytes", out.SessionBlockBytes),
		attribute.Float64("session.usage_share", usage.Share),
	)
	a.logger.Debug("prompt assembled",
		zap.String("sid", in.SessionID),
		zap.String("domain", d.Key()),
		zap.Int("block_bytes", out.SessionBlockBytes),
		zap.Int("budget", usage.Budget),
		zap.Float64("usage_share", usage.Share),
	)
	return out, nil
}

func (a *Assembler) usageInput(in AssembleInput, block string) UsageInput {
	ui := UsageInput{
		SystemText:        in.SystemText,
		UserText:          in.UserText,
		SessionBlock:      block,
		PrevAssistantText: in.PrevAssistantText,
		CtxMax:            a.ctxMax,
		ReserveOutput:     a.reserveOutput,
	}
	if in.CtxMax > 0 {
		ui.CtxMax = in.CtxMax
	}
	if in.ReserveOutput > 0 {
		ui.ReserveOutput = in.ReserveOutput
	}
	return ui
}

// JoinPrompt 用空行拼接非空段
func JoinPrompt(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

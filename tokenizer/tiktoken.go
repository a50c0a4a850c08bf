package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TiktokenCounter 按 OpenAI 系模型的 BPE 编码计数
// 编码加载失败时退化为 EstimateTokens
type TiktokenCounter struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
	logger   *zap.Logger
}

// modelEncodings 模型名到 tiktoken 编码
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// NewTiktokenCounter 创建延迟初始化的计数器，未知模型使用 cl100k_base
func NewTiktokenCounter(model string, logger *zap.Logger) *TiktokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	encoding, ok := modelEncodings[model]
	if !ok {
		encoding = "cl100k_base"
		for prefix, e := range modelEncodings {
			if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
				encoding = e
				break
			}
		}
	}
	return &TiktokenCounter{
		model:    model,
		encoding: encoding,
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
}

// init 首次使用时加载编码，可能需要下载数据
func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			t.logger.Warn("tiktoken unavailable, falling back to byte estimate",
				zap.String("model", t.model), zap.Error(err))
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return EstimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *TiktokenCounter) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}

// RegisterOpenAICounters 为每个已知 OpenAI 模型注册 tiktoken 计数器
func RegisterOpenAICounters(logger *zap.Logger) {
	for model := range modelEncodings {
		Register(model, NewTiktokenCounter(model, logger))
	}
}

package tokenizer

// BytesPerToken 估算器使用的固定比例
const BytesPerToken = 4

// ByteSize s 的 UTF-8 字节长度
func ByteSize(s string) int {
	return len(s)
}

// EstimateTokens 返回 ceil(ByteSize(s)/4)
// 该比例只是占位，替换实现也必须向上取整且空串为 0
func EstimateTokens(s string) int {
	n := ByteSize(s)
	if n == 0 {
		return 0
	}
	return (n + BytesPerToken - 1) / BytesPerToken
}

// ByteEstimator 基于 EstimateTokens 的默认 Counter
type ByteEstimator struct{}

// NewByteEstimator 创建估算计数器
func NewByteEstimator() ByteEstimator {
	return ByteEstimator{}
}

func (ByteEstimator) CountTokens(text string) int {
	return EstimateTokens(text)
}

func (ByteEstimator) Name() string {
	return "bytes/4"
}

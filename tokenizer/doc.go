// Package tokenizer 提供字节与 Token 计数，
// 默认使用固定的 4 字节/Token 估算器，可替换为 tiktoken 精确计数，
// 供 card 重平衡与 assembler 预算计算使用。
package tokenizer

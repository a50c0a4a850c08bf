package updaters

import (
	"regexp"
	"strings"

	"github.com/BaSui01/sessionctx/card"
)

// 所有提取器都会写的载荷字段
const (
	FieldFresh     = card.FieldFresh
	FieldCallbacks = card.FieldCallbacks
)

// ShortLineMax 可作为 fresh 或 callbacks 条目的最长行（字节）
const ShortLineMax = card.BulletLineMax

// FreshPerTurn 单条回复最多取出的 fresh 条目
const FreshPerTurn = 3

// keywordRule 任一模式命中即打上 tag
type keywordRule struct {
	tag     string
	pattern *regexp.Regexp
}

func rule(tag string, keywords ...string) keywordRule {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	return keywordRule{
		tag:     tag,
		pattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)`),
	}
}

// matchTags 按规则表顺序返回命中的 tag，不重复
func matchTags(rules []keywordRule, text string) []string {
	var tags []string
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			tags = appendUnique(tags, r.tag)
		}
	}
	return tags
}

// shortLines 最多返回 n 行去空白后非空且不超过 ShortLineMax 字节的行
func shortLines(text string, n int) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		if len(out) >= n {
			break
		}
		line := strings.TrimSpace(raw)
		if line == "" || len(line) > ShortLineMax {
			continue
		}
		out = append(out, line)
	}
	return out
}

// addLines 从 text 填充补丁的 fresh 与 callbacks
func addLines(patch map[string]any, text string) {
	lines := shortLines(text, FreshPerTurn)
	if len(lines) == 0 {
		return
	}
	patch[FieldCallbacks] = []string{lines[0]}
	patch[FieldFresh] = lines
}

func appendUnique(xs []string, items ...string) []string {
	for _, it := range items {
		if !contains(xs, it) {
			xs = append(xs, it)
		}
	}
	return xs
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// toStrings 把 JSON 列表读成字符串，跳过非字符串项
func toStrings(v any) ([]string, bool) {
	switch xs := v.(type) {
	case []string:
		return append([]string{}, xs...), true
	case []any:
		out := make([]string, 0, len(xs))
		for _, x := range xs {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

package updaters

import (
	"context"
	"regexp"
	"strings"

	"github.com/BaSui01/sessionctx/persistence"
	"github.com/BaSui01/sessionctx/types"
)

// 心理疏导载荷字段
const (
	FieldIntent = "intent"
	FieldThemes = "themes"
)

var therapyIntents = []keywordRule{
	rule("manage_anxiety", "anxious", "anxiety"),
	rule("anger_work", "angry", "anger"),
	rule("sleep_issues", "sleep"),
	rule("family_conflict", "family"),
	rule("grief", "grief", "loss"),
	rule("self_esteem", "confidence"),
}

// ExtractTherapy 从模型回复中提取心理疏导补丁
// 第一个命中的意图写入 intent，全部命中写入 themes
func ExtractTherapy(text string) (types.Patch, bool) {
	patch := types.Patch{}
	if tags := matchTags(therapyIntents, text); len(tags) > 0 {
		patch[FieldIntent] = tags[0]
		patch[FieldThemes] = tags
	}
	addLines(patch, text)
	return patch, len(patch) > 0
}

// MaxTherapySentences 清洗后回复保留的最大句数
const MaxTherapySentences = 2

var (
	wrappingQuotes = regexp.MustCompile(`^["“”]+|["“”]+$`)
	speakerLabel   = regexp.MustCompile(`^[A-Z][a-z]+(?:\s[A-Z][a-z]+)?:\s*`)
	directions     = regexp.MustCompile(`\*.*?\*|\(.*?\)|\[.*?\]`)
	sentenceEnd    = regexp.MustCompile(`[.!?]\s+`)
)

// SanitizeTherapyReply 去掉包裹引号、开头的说话人标签与舞台指示，再截到 MaxTherapySentences 句
func SanitizeTherapyReply(text string) string {
	if text == "" {
		return ""
	}
	text = wrappingQuotes.ReplaceAllString(text, "")
	text = speakerLabel.ReplaceAllString(text, "")
	text = strings.TrimSpace(directions.ReplaceAllString(text, " "))
	return LimitSentences(text, MaxTherapySentences)
}

// LimitSentences 保留前 max 句，没有完整句子时原样返回，不在句中截断
func LimitSentences(text string, max int) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return t
	}

	var parts []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(t, -1) {
		parts = append(parts, t[start:loc[0]+1])
		start = loc[1]
	}
	parts = append(parts, t[start:])

	if len(parts) == 1 && !strings.ContainsAny(t[len(t)-1:], ".!?") {
		return parts[0]
	}
	if len(parts) > max {
		parts = parts[:max]
	}
	return strings.Join(parts, " ")
}

// Therapy 心理疏导领域的清洗与提取
var Therapy = Writer{
	Domain:   types.DomainTherapy,
	Sanitize: SanitizeTherapyReply,
	Extract:  ExtractTherapy,
}

// WriteTherapyPatch 写入从 text 提取的心理疏导补丁（若有）
func WriteTherapyPatch(ctx context.Context, store persistence.Store, sid, text string, opts ...Option) (bool, error) {
	return Therapy.Write(ctx, store, sid, text, opts...)
}

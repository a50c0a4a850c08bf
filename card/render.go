package card

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FreshBullet 渲染时每条 fresh 行的前缀
const FreshBullet = "• "

// CallbacksPrefix 渲染时 callbacks JSON 数组的前缀
const CallbacksPrefix = "callbacks="

// RenderBlock 依次拼接摘要、fresh 行与 callbacks 行，省略空的部分。
// 所有字节上限都以此输出为准。
func RenderBlock(c Card) string {
	parts := make([]string, 0, 3)
	if d := strings.TrimSpace(c.SceneDigest); d != "" {
		parts = append(parts, d)
	}
	if f := renderFresh(c.Fresh); f != "" {
		parts = append(parts, f)
	}
	if len(c.Callbacks) > 0 {
		parts = append(parts, CallbacksPrefix+jsonArray(c.Callbacks))
	}
	return strings.Join(parts, "\n")
}

func renderFresh(fresh []string) string {
	if len(fresh) == 0 {
		return ""
	}
	lines := make([]string, 0, len(fresh))
	for _, f := range fresh {
		lines = append(lines, FreshBullet+f)
	}
	return strings.Join(lines, "\n")
}

func jsonArray(xs []string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(xs); err != nil {
		return "[]"
	}
	return strings.TrimRight(buf.String(), "\n")
}

package card

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// 只有后面跟空白的 - * • 才算项目符号，"-5 dollars" 与 "*强调*" 保持原样
var bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]\s+)+`)

// AddBullet 以 "- " 项目符号把 line 追加到摘要末尾。
// 先去掉 line 自带的项目符号，再截断到 BulletLineMax 字节；空行忽略。
func AddBullet(digest, line string) string {
	line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
	line = strings.Join(strings.Fields(line), " ")
	if line == "" {
		return digest
	}
	line = truncateBytes(line, BulletLineMax)

	digest = strings.TrimRight(digest, "\n")
	if strings.TrimSpace(digest) == "" {
		return "- " + line
	}
	return digest + "\n- " + line
}

// TightenDigest 逐行规整摘要：去首尾空白、合并空白、丢弃空行、截断到
// DigestLineMax 字节，重复行只保留第一次出现。
// 去重比较的是截断后的形式，因此结果是不动点。
func TightenDigest(digest string) string {
	if digest == "" {
		return ""
	}
	lines := strings.Split(digest, "\n")
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, raw := range lines {
		line := strings.Join(strings.Fields(raw), " ")
		if line == "" {
			continue
		}
		line = truncateBytes(line, DigestLineMax)
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// DigestLines 返回摘要中的非空行
func DigestLines(digest string) []string {
	var out []string
	for _, l := range strings.Split(digest, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// truncateBytes 在 rune 边界上把 s 截到至多 max 字节（含省略号）
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - len(Ellipsis)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], " ") + Ellipsis
}

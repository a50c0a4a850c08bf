package updaters

import (
	"context"
	"regexp"
	"strings"

	"github.com/BaSui01/sessionctx/persistence"
	"github.com/BaSui01/sessionctx/types"
)

// 财务载荷字段
const (
	FieldGoals      = "goals"
	FieldLastPlanID = "last_plan_id"
	FieldRisk       = "risk"
	FieldProfile    = "profile"
)

var financialGoals = []keywordRule{
	rule("3mo_emergency_fund", "emergency fund"),
	rule("debt_paydown", "pay off debt", "debt"),
	rule("retirement", "retire"),
	rule("monthly_budget", "budget"),
	rule("investing", "invest"),
}

var (
	planToken = regexp.MustCompile(`(?i)\bplan_[a-z0-9][a-z0-9_-]*`)
	riskWord  = regexp.MustCompile(`(?i)\b(low|medium|high)[\s-]+risk\b`)
)

// ExtractFinancial 从模型回复中提取财务补丁
func ExtractFinancial(text string) (types.Patch, bool) {
	patch := types.Patch{}
	if goals := matchTags(financialGoals, text); len(goals) > 0 {
		patch[FieldGoals] = goals
	}
	if id := planToken.FindString(text); id != "" {
		patch[FieldLastPlanID] = id
	}
	if m := riskWord.FindStringSubmatch(text); m != nil {
		patch[FieldRisk] = strings.ToLower(m[1])
	}
	addLines(patch, text)
	return patch, len(patch) > 0
}

// 财务回复清洗：舞台指示与误回显的 FACTS/RULES 行
var financialNoise = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*facts(?:\s*\(internal\))?:.*$`),
	regexp.MustCompile(`(?im)^\s*wallet[_\s]*usd\s*:\s*\$?\d+(?:\.\d{2})?\s*$`),
	regexp.MustCompile(`(?im)^\s*monthly[_\s]*income[_\s]*usd:.*$`),
	regexp.MustCompile(`(?im)^\s*employed:.*$`),
	regexp.MustCompile(`(?im)^\s*rules[^\n]*$`),
}

var (
	stageAside = regexp.MustCompile(`\*[^*]+\*`)
	spaceRun   = regexp.MustCompile(`\s{2,}`)
)

// SanitizeFinancialReply 去掉 *sighs* 之类的舞台指示与回显的提示词，再合并连续空白
func SanitizeFinancialReply(text string) string {
	text = stageAside.ReplaceAllString(text, " ")
	for _, re := range financialNoise {
		text = re.ReplaceAllString(text, "")
	}
	text = spaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Financial 财务领域的清洗与提取
var Financial = Writer{
	Domain:   types.DomainFinancial,
	Sanitize: SanitizeFinancialReply,
	Extract:  ExtractFinancial,
}

// WriteFinancialPatch 写入从 text 提取的财务补丁（若有）
func WriteFinancialPatch(ctx context.Context, store persistence.Store, sid, text string, opts ...Option) (bool, error) {
	return Financial.Write(ctx, store, sid, text, opts...)
}

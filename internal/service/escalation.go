package service

import (
	"drone-helpdesk-go/internal/model"
	"strings"
)

// 转人工原因。
const (
	ReasonNoSources            = "No relevant information found in documentation"
	ReasonAgentNotFound        = "Agent could not find specific information"
	ReasonOfficialVerification = "Query requires official verification"
	ReasonLegalOrComplex       = "Legal or complex-nature query"
)

// EscalationRule 是一条转人工规则。content 已转为小写。
type EscalationRule struct {
	Name   string
	Reason string
	Match  func(answer *model.GeneratedAnswer, content string) bool
}

// EscalationClassifier 按顺序评估规则，命中第一条即返回。无状态，可并发使用。
type EscalationClassifier struct {
	rules []EscalationRule
}

// NewEscalationClassifier 使用默认规则表创建分类器。
func NewEscalationClassifier(authorityName string) *EscalationClassifier {
	return &EscalationClassifier{rules: DefaultEscalationRules(authorityName)}
}

// NewEscalationClassifierWithRules 使用自定义规则表创建分类器。
func NewEscalationClassifierWithRules(rules []EscalationRule) *EscalationClassifier {
	return &EscalationClassifier{rules: rules}
}

var notFoundPhrases = []string{
	"i don't find",
	"i do not find",
	"i can't find",
	"i could not find",
	"i couldn't find",
	"i don't have information",
	"i do not have information",
	"i don't have that information",
	"i do not have that information",
	"no encuentro",
	"no tengo información",
}

// 子串匹配：illegal、fined、sanctioned 等变形同样命中。
var highStakesKeywords = []string{
	"legal",
	"lawsuit",
	"accident",
	"sanction",
	"fine",
	"demanda",
	"sanción",
	"sancion",
	"multa",
}

// 与监管机构名称出现在同一句中时视为建议联系官方。
var consultVerbs = []string{
	"contact",
	"consult",
	"reach out",
	"get in touch",
	"speak to",
	"speak with",
	"contacta",
	"consulta",
}

// DefaultEscalationRules 返回按优先级排列的默认规则表。
func DefaultEscalationRules(authorityName string) []EscalationRule {
	authority := strings.ToLower(strings.TrimSpace(authorityName))
	consultPhrases := []string{
		"contact the regulatory authority",
		"consult the regulatory authority",
		"contacta con",
	}

	return []EscalationRule{
		{
			Name:   "no_sources",
			Reason: ReasonNoSources,
			Match: func(a *model.GeneratedAnswer, _ string) bool {
				return a.Metadata.SourcesCount == 0
			},
		},
		{
			Name:   "agent_not_found",
			Reason: ReasonAgentNotFound,
			Match: func(_ *model.GeneratedAnswer, content string) bool {
				return containsAny(content, notFoundPhrases)
			},
		},
		{
			Name:   "official_verification",
			Reason: ReasonOfficialVerification,
			Match: func(_ *model.GeneratedAnswer, content string) bool {
				return containsAny(content, consultPhrases) || mentionsConsulting(content, authority)
			},
		},
		{
			Name:   "legal_or_complex",
			Reason: ReasonLegalOrComplex,
			Match: func(_ *model.GeneratedAnswer, content string) bool {
				return containsAny(content, highStakesKeywords)
			},
		},
	}
}

// ShouldEscalate 判断回答是否需要转人工；不需要时返回 (false, "")。
func (c *EscalationClassifier) ShouldEscalate(answer *model.GeneratedAnswer) (bool, string) {
	content := normalizeContent(answer.Content)
	for _, rule := range c.rules {
		if rule.Match(answer, content) {
			return true, rule.Reason
		}
	}
	return false, ""
}

// Classify 与 ShouldEscalate 相同，返回结构体形式。
func (c *EscalationClassifier) Classify(answer *model.GeneratedAnswer) model.EscalationVerdict {
	escalate, reason := c.ShouldEscalate(answer)
	return model.EscalationVerdict{Escalate: escalate, Reason: reason}
}

func normalizeContent(s string) string {
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "’", "'")
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// mentionsConsulting 判断是否有某一句同时包含联系类动词和监管机构名称。
func mentionsConsulting(content, authority string) bool {
	if authority == "" {
		return false
	}
	sentences := strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	for _, sentence := range sentences {
		if strings.Contains(sentence, authority) && containsAny(sentence, consultVerbs) {
			return true
		}
	}
	return false
}

package reconcile

import (
	"strings"
)

// EntityClassifier maps a normalized description onto a canonical entity label.
// An empty label means the description could not be classified.
type EntityClassifier interface {
	Classify(normalized string) string
}

// KeywordRule assigns Entity when any keyword phrase occurs in the description as whole tokens.
type KeywordRule struct {
	Entity   string   `yaml:"entity" json:"entity" validate:"required"`
	Keywords []string `yaml:"keywords" json:"keywords" validate:"required,min=1,dive,required"`
}

// KeywordClassifier checks rules in order and returns the first entity that matches.
type KeywordClassifier struct {
	rules []compiledRule
}

type compiledRule struct {
	entity   string
	keywords [][]string
}

func NewKeywordClassifier(rules []KeywordRule, n *Normalizer) *KeywordClassifier {
	c := &KeywordClassifier{}
	for _, r := range rules {
		cr := compiledRule{entity: strings.TrimSpace(r.Entity)}
		if cr.entity == "" {
			continue
		}
		for _, kw := range r.Keywords {
			tokens := strings.Fields(n.Normalize(kw))
			if len(tokens) > 0 {
				cr.keywords = append(cr.keywords, tokens)
			}
		}
		if len(cr.keywords) > 0 {
			c.rules = append(c.rules, cr)
		}
	}
	return c
}

func (c *KeywordClassifier) Classify(normalized string) string {
	if c == nil || normalized == "" {
		return ""
	}
	tokens := strings.Fields(normalized)
	for _, r := range c.rules {
		for _, kw := range r.keywords {
			if containsTokens(tokens, kw) {
				return r.entity
			}
		}
	}
	return ""
}

func containsTokens(tokens, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		if hasPrefixTokens(tokens[i:], phrase) {
			return true
		}
	}
	return false
}

package reconcile

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultSynonyms maps the spellings seen in bank exports onto one token.
// Keys and values go through the same folding as descriptions, so they can be written naturally.
var DefaultSynonyms = map[string]string{
	"e-transfer":           "etransfer",
	"e transfer":           "etransfer",
	"email transfer":       "etransfer",
	"interac e-transfer":   "etransfer",
	"interac etransfer":    "etransfer",
	"etfr":                 "etransfer",
	"e-tfr":                "etransfer",
	"non-sufficient funds": "nsf",
	"insufficient funds":   "nsf",
	"point of sale":        "pos",
	"debit memo":           "debitmemo",
	"cheque":               "chq",
	"check":                "chq",
}

type synonymRule struct {
	from []string
	to   []string
}

// Normalizer canonicalizes free-text vendor/description fields for comparison.
// It is immutable after construction and safe to share.
type Normalizer struct {
	rules []synonymRule
}

// NewNormalizer builds a normalizer; longer phrases win over shorter ones starting at the same token.
func NewNormalizer(synonyms map[string]string) *Normalizer {
	n := &Normalizer{}
	for from, to := range synonyms {
		f := strings.Fields(fold(from))
		if len(f) == 0 {
			continue
		}
		n.rules = append(n.rules, synonymRule{from: f, to: strings.Fields(fold(to))})
	}
	sort.Slice(n.rules, func(i, j int) bool {
		if len(n.rules[i].from) != len(n.rules[j].from) {
			return len(n.rules[i].from) > len(n.rules[j].from)
		}
		return strings.Join(n.rules[i].from, " ") < strings.Join(n.rules[j].from, " ")
	})
	return n
}

var defaultNormalizer = NewNormalizer(DefaultSynonyms)

// Normalize uses the default synonym table.
func Normalize(text string) string {
	return defaultNormalizer.Normalize(text)
}

func (n *Normalizer) Normalize(text string) string {
	if n == nil {
		n = defaultNormalizer
	}
	tokens := strings.Fields(fold(text))
	if len(tokens) == 0 {
		return ""
	}
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		matched := false
		for _, r := range n.rules {
			if hasPrefixTokens(tokens[i:], r.from) {
				out = append(out, r.to...)
				i += len(r.from)
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	return strings.Join(out, " ")
}

func hasPrefixTokens(tokens, prefix []string) bool {
	if len(prefix) > len(tokens) {
		return false
	}
	for i := range prefix {
		if tokens[i] != prefix[i] {
			return false
		}
	}
	return true
}

// fold lowercases, drops diacritics and apostrophes, and turns any other punctuation into spaces.
func fold(text string) string {
	if text == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range strings.ToLower(stripped) {
		switch {
		case r == '\'' || r == '’' || r == '`':
			// O'Reilly -> oreilly
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

package reconcile

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DescriptionSimilarity is 1 - levenshtein/maxlen over already-normalized strings.
// Identical strings (including two empty ones) score 1; one empty side scores 0.
func DescriptionSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	longest := la
	if lb > longest {
		longest = lb
	}
	dist := levenshtein.ComputeDistance(a, b)
	score := 1 - float64(dist)/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}

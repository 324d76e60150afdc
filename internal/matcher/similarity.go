package matcher

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Similarity computes a normalized similarity ratio between two text
// fragments, in [0.0, 1.0]. The comparison is case-insensitive and ignores
// leading/trailing whitespace. Two empty strings score 0.0: a line item
// missing both fields must never match by default. The ratio is symmetric
// and reaches 1.0 only for identical normalized strings.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == "" && b == "" {
		return 0.0
	}

	if a == b {
		return 1.0
	}

	// Edit-distance ratio with substitution cost 2, equivalent to the
	// classic 2*M/T sequence-similarity ratio.
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}

// SimilarityAtLeast reports whether the two fragments score at or above the
// given threshold, returning the score for callers that need it
func SimilarityAtLeast(a, b string, threshold float64) (float64, bool) {
	score := Similarity(a, b)
	return score, score >= threshold
}

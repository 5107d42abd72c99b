package alias

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// unitCost weighs insertions, deletions and substitutions equally so the
// distance never exceeds the longer string's length.
var unitCost = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Similarity returns a normalized edit-distance score in [0,1].
// Case and runs of whitespace are ignored.
func Similarity(a, b string) float64 {
	ra := []rune(fuzzyKey(a))
	rb := []rune(fuzzyKey(b))

	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 0
	}

	distance := levenshtein.DistanceForStrings(ra, rb, unitCost)
	score := 1 - float64(distance)/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}

// fuzzyKey lower-cases and collapses whitespace.
func fuzzyKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

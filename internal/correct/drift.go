package correct

import (
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// driftRatio measures how far corrected has moved from raw as the
// Levenshtein distance normalised by the raw text's rune length. 0 means
// identical, 1 means every character changed (or more, for long insertions).
func driftRatio(raw, corrected string) float64 {
	n := utf8.RuneCountInString(raw)
	if n == 0 {
		if corrected == "" {
			return 0
		}
		return 1
	}
	dist := matchr.Levenshtein(raw, corrected)
	return float64(dist) / float64(n)
}

package compare

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Levenshtein scores two values by normalized edit distance:
// 1 - distance/max(len(a), len(b)) over runes. Both empty scores 1,
// exactly one empty scores 0. Case folding and whitespace collapsing
// apply by default; opts.CaseSensitive and opts.KeepWhitespace disable
// them.
func Levenshtein(a, b any, opts *Options) float64 {
	opts = ensureOptions(opts)
	if score, handled := nullScore(a, b, opts); handled {
		return score
	}

	as := normalize(a, opts)
	bs := normalize(b, opts)

	aLen := utf8.RuneCountInString(as)
	bLen := utf8.RuneCountInString(bs)
	if aLen == 0 && bLen == 0 {
		return 1
	}
	if aLen == 0 || bLen == 0 {
		return 0
	}

	distance := levenshtein.ComputeDistance(as, bs)
	longest := aLen
	if bLen > longest {
		longest = bLen
	}
	return 1 - float64(distance)/float64(longest)
}

package compare

import "strings"

// MetaphoneEncode returns the Metaphone encoding of a value, truncated to
// maxLength characters (4 when maxLength <= 0). The encoder applies the
// digraph rules (CH→X, PH→F, TH→0, SH→X), the silent-letter rules
// (initial KN/GN/PN/WR, H after a vowel and not before one, W/Y not
// followed by a vowel, B after M at word end, GH before a consonant),
// contextual C/G/D/S/T transformations, and keeps vowels only at the
// word start. Non-alphabetic characters are stripped first.
func MetaphoneEncode(v any, maxLength int) string {
	if maxLength <= 0 {
		maxLength = 4
	}

	s := stripNonAlpha(coerce(v))
	if s == "" {
		return ""
	}

	// Initial silent consonants.
	if len(s) >= 2 {
		switch s[:2] {
		case "KN", "GN", "PN", "WR":
			s = s[1:]
		}
	}

	at := func(i int) byte {
		if i < 0 || i >= len(s) {
			return 0
		}
		return s[i]
	}
	vowelAt := func(i int) bool {
		return isVowel(at(i))
	}

	var b strings.Builder
	b.Grow(maxLength)

	for i := 0; i < len(s) && b.Len() < maxLength; i++ {
		c := s[i]

		// Collapse doubled letters.
		if i > 0 && c == s[i-1] {
			continue
		}

		switch c {
		case 'A', 'E', 'I', 'O', 'U':
			if i == 0 {
				b.WriteByte(c)
			}
		case 'B':
			// Silent after M at word end (lamb, comb).
			if !(i == len(s)-1 && at(i-1) == 'M') {
				b.WriteByte('B')
			}
		case 'C':
			switch {
			case at(i+1) == 'H':
				b.WriteByte('X')
				i++
			case at(i+1) == 'I' || at(i+1) == 'E' || at(i+1) == 'Y':
				b.WriteByte('S')
			default:
				b.WriteByte('K')
			}
		case 'D':
			if at(i+1) == 'G' && (at(i+2) == 'E' || at(i+2) == 'Y' || at(i+2) == 'I') {
				b.WriteByte('J')
				i += 2
			} else {
				b.WriteByte('T')
			}
		case 'F', 'J', 'L', 'M', 'N', 'R':
			b.WriteByte(c)
		case 'G':
			switch {
			case at(i+1) == 'H':
				if vowelAt(i + 2) {
					b.WriteByte('K') // ghost
				} else {
					b.WriteByte('X') // knight, night
				}
				i++
			case at(i+1) == 'N':
				// silent: sign, gnome mid-word
			case at(i+1) == 'I' || at(i+1) == 'E' || at(i+1) == 'Y':
				b.WriteByte('J')
			default:
				b.WriteByte('K')
			}
		case 'H':
			// Silent after a vowel when not before one.
			if i > 0 && vowelAt(i-1) && !vowelAt(i+1) {
				continue
			}
			b.WriteByte('H')
		case 'K':
			if at(i-1) != 'C' {
				b.WriteByte('K')
			}
		case 'P':
			if at(i+1) == 'H' {
				b.WriteByte('F')
				i++
			} else {
				b.WriteByte('P')
			}
		case 'Q':
			b.WriteByte('K')
		case 'S':
			switch {
			case at(i+1) == 'H':
				b.WriteByte('X')
				i++
			case at(i+1) == 'I' && (at(i+2) == 'O' || at(i+2) == 'A'):
				b.WriteByte('X')
			default:
				b.WriteByte('S')
			}
		case 'T':
			switch {
			case at(i+1) == 'H':
				b.WriteByte('0')
				i++
			case at(i+1) == 'I' && (at(i+2) == 'O' || at(i+2) == 'A'):
				b.WriteByte('X')
			case at(i+1) == 'C' && at(i+2) == 'H':
				// silent: collapses into the CH rule (watch, match)
			default:
				b.WriteByte('T')
			}
		case 'V':
			b.WriteByte('F')
		case 'W', 'Y':
			if vowelAt(i + 1) {
				b.WriteByte(c)
			}
		case 'X':
			b.WriteByte('K')
			if b.Len() < maxLength {
				b.WriteByte('S')
			}
		case 'Z':
			b.WriteByte('S')
		}
	}

	return b.String()
}

// Metaphone scores 1 when the Metaphone encodings of two values are equal.
func Metaphone(a, b any, opts *Options) float64 {
	opts = ensureOptions(opts)
	if score, handled := nullScore(a, b, opts); handled {
		return score
	}
	if MetaphoneEncode(a, opts.MaxCodeLength) == MetaphoneEncode(b, opts.MaxCodeLength) {
		return 1
	}
	return 0
}

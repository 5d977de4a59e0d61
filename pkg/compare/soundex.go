package compare

import "strings"

// soundexCode maps a letter to its Soundex digit class, or 0 for letters
// that are dropped (vowels, h, w, y).
func soundexCode(c byte) byte {
	switch c {
	case 'B', 'F', 'P', 'V':
		return '1'
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return '2'
	case 'D', 'T':
		return '3'
	case 'L':
		return '4'
	case 'M', 'N':
		return '5'
	case 'R':
		return '6'
	}
	return 0
}

func isVowel(c byte) bool {
	switch c {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

// SoundexEncode returns the 4-character Soundex encoding of a value:
// the first letter verbatim followed by up to three digit classes.
// Adjacent identical codes collapse; a vowel between two letters of the
// same class resets adjacency, h and w do not. Non-alphabetic characters
// are stripped first. Empty input encodes to "".
func SoundexEncode(v any) string {
	s := stripNonAlpha(coerce(v))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(4)
	b.WriteByte(s[0])

	lastCode := soundexCode(s[0])
	for i := 1; i < len(s) && b.Len() < 4; i++ {
		c := s[i]
		code := soundexCode(c)
		switch {
		case code != 0:
			if code != lastCode {
				b.WriteByte(code)
			}
			lastCode = code
		case isVowel(c) || c == 'Y':
			lastCode = 0
		}
		// h and w are dropped without resetting adjacency
	}

	encoded := b.String()
	if len(encoded) < 4 {
		encoded += strings.Repeat("0", 4-len(encoded))
	}
	return encoded
}

// Soundex scores 1 when the Soundex encodings of two values are equal.
func Soundex(a, b any, opts *Options) float64 {
	opts = ensureOptions(opts)
	if score, handled := nullScore(a, b, opts); handled {
		return score
	}
	if SoundexEncode(a) == SoundexEncode(b) {
		return 1
	}
	return 0
}

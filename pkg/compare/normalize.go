package compare

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/agentstation/resolve/pkg/record"
)

var foldCaser = cases.Fold()

// coerce renders non-string scalars (numbers, booleans, timestamps) the way
// the record package does before string comparators run.
func coerce(v any) string {
	return record.CoerceString(v)
}

// normalize prepares a value for string comparison: coerce to string,
// NFC-normalize, then fold case and collapse whitespace per options.
func normalize(v any, opts *Options) string {
	s := coerce(v)
	s = norm.NFC.String(s)
	if !opts.CaseSensitive {
		s = foldCaser.String(s)
	}
	if !opts.KeepWhitespace {
		s = collapseWhitespace(s)
	}
	return s
}

// collapseWhitespace trims the string and squeezes interior whitespace
// runs to a single space.
func collapseWhitespace(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}

// stripNonAlpha removes everything but ASCII letters and uppercases the
// rest. Phonetic encoders operate on the result.
func stripNonAlpha(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}

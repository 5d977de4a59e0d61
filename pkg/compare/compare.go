// Package compare provides pure field-similarity comparators for the resolve
// engine. Every comparator maps a pair of field values to a score in [0,1],
// shares one null-handling policy, and is deterministic: identical inputs
// always produce identical scores.
package compare

import (
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/record"
)

// Func is a field comparator. Implementations must be symmetric
// (Func(a,b)==Func(b,a)) and reflexive (Func(a,a)==1 for non-null a).
type Func func(a, b any, opts *Options) float64

// Options configures comparator behavior. The zero value is not useful;
// use DefaultOptions and override.
type Options struct {
	// NullMatchesNull scores two null values as 1 when true (the default).
	NullMatchesNull bool

	// CaseSensitive disables Unicode case folding before string comparison.
	CaseSensitive bool

	// KeepWhitespace disables trimming and whitespace-run collapsing
	// before edit-distance comparison.
	KeepWhitespace bool

	// PrefixScale is the Jaro-Winkler common-prefix bonus scale.
	// Valid range is 0 to 0.25; default 0.1.
	PrefixScale float64

	// MaxPrefixLength caps the Jaro-Winkler prefix bonus length. Default 4.
	MaxPrefixLength int

	// MaxCodeLength truncates metaphone encodings. Default 4.
	MaxCodeLength int
}

// DefaultOptions returns the default comparator options.
func DefaultOptions() *Options {
	return &Options{
		NullMatchesNull: true,
		PrefixScale:     0.1,
		MaxPrefixLength: 4,
		MaxCodeLength:   4,
	}
}

func ensureOptions(opts *Options) *Options {
	if opts == nil {
		return DefaultOptions()
	}
	return opts
}

// nullScore applies the shared null policy. handled is true when at least
// one side is null and score carries the final result.
func nullScore(a, b any, opts *Options) (score float64, handled bool) {
	aNull := record.IsNull(a)
	bNull := record.IsNull(b)
	switch {
	case aNull && bNull:
		if opts.NullMatchesNull {
			return 1, true
		}
		return 0, true
	case aNull || bNull:
		return 0, true
	}
	return 0, false
}

// Named comparators usable from scoring configuration.
const (
	NameExact       = "exact"
	NameLevenshtein = "levenshtein"
	NameJaroWinkler = "jaroWinkler"
	NameSoundex     = "soundex"
	NameMetaphone   = "metaphone"
)

var registry = map[string]Func{
	NameExact:       Exact,
	NameLevenshtein: Levenshtein,
	NameJaroWinkler: JaroWinkler,
	NameSoundex:     Soundex,
	NameMetaphone:   Metaphone,
}

// Lookup resolves a comparator by name.
func Lookup(name string) (Func, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, errors.NewValidationError("comparator", name, "unknown comparator")
	}
	return fn, nil
}

// Names returns the registered comparator names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

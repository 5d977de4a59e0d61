package blocking

import (
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/record"
)

// Standard blocks records on an exact composite key over one or more fields.
// Records with identical keys are candidates.
type Standard struct {
	fields  []string
	options fieldOptions
	name    string
}

// NewStandard creates a standard blocking strategy over the given fields.
func NewStandard(fields []string, opts ...FieldOption) (*Standard, error) {
	if len(fields) == 0 {
		return nil, errors.NewValidationError("fields", fields, "at least one blocking field is required")
	}
	return &Standard{
		fields:  fields,
		options: applyFieldOptions(opts),
	}, nil
}

// WithName sets a cosmetic display name on the strategy.
func (s *Standard) WithName(name string) *Standard {
	s.name = name
	return s
}

// Generate derives the blocking key. ok is false when any blocking field
// is missing or null on the record.
func (s *Standard) Generate(r record.Record) (Key, bool) {
	key := make(Key, len(s.fields))
	for _, field := range s.fields {
		v, ok := r.Field(field)
		if !ok {
			return nil, false
		}
		normalized := s.options.normalizeValue(v)
		if normalized == "" {
			return nil, false
		}
		key[field] = normalized
	}
	return key, true
}

// Descriptor returns the structured strategy description.
func (s *Standard) Descriptor() Descriptor {
	return Descriptor{
		Kind:      KindStandard,
		Name:      s.name,
		Fields:    append([]string(nil), s.fields...),
		Transform: s.options.transform,
		PrefixLen: prefixLenFor(s.options),
	}
}

// Pairs returns all pairs of records sharing an identical key.
func (s *Standard) Pairs(records []record.Record) []Pair {
	groups := make(map[string][]int)
	for i, r := range records {
		if key, ok := s.Generate(r); ok {
			serialized := key.String()
			groups[serialized] = append(groups[serialized], i)
		}
	}

	var pairs []Pair
	for _, members := range groups {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				pairs = append(pairs, Pair{A: members[i], B: members[j]})
			}
		}
	}
	return sortPairs(pairs)
}

// Candidates returns indices of existing records with the candidate's key.
func (s *Standard) Candidates(candidate record.Record, existing []record.Record) []int {
	key, ok := s.Generate(candidate)
	if !ok {
		return nil
	}
	want := key.String()

	var matches []int
	for i, r := range existing {
		if other, ok := s.Generate(r); ok && other.String() == want {
			matches = append(matches, i)
		}
	}
	return matches
}

func prefixLenFor(o fieldOptions) int {
	if o.transform == TransformFirstN {
		return o.prefixLen
	}
	return 0
}

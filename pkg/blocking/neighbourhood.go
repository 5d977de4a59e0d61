package blocking

import (
	"sort"
	"strings"

	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/record"
)

// SortedNeighbourhood blocks records by sorting them on one or more
// (optionally transformed) keys; any pair within a sliding window of the
// sort order is a candidate. Larger windows trade recall for more
// comparisons.
type SortedNeighbourhood struct {
	fields  []string
	window  int
	options fieldOptions
	name    string
}

// NewSortedNeighbourhood creates a sorted-neighbourhood strategy with the
// given sort fields and window size.
func NewSortedNeighbourhood(fields []string, window int, opts ...FieldOption) (*SortedNeighbourhood, error) {
	if len(fields) == 0 {
		return nil, errors.NewValidationError("fields", fields, "at least one sort field is required")
	}
	if window < 1 {
		return nil, errors.NewValidationError("window", window, "window must be at least 1")
	}
	return &SortedNeighbourhood{
		fields:  fields,
		window:  window,
		options: applyFieldOptions(opts),
	}, nil
}

// WithName sets a cosmetic display name on the strategy.
func (s *SortedNeighbourhood) WithName(name string) *SortedNeighbourhood {
	s.name = name
	return s
}

// Generate derives the blocking key holding the transformed sort fields.
func (s *SortedNeighbourhood) Generate(r record.Record) (Key, bool) {
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
func (s *SortedNeighbourhood) Descriptor() Descriptor {
	return Descriptor{
		Kind:      KindSortedNeighbourhood,
		Name:      s.name,
		Fields:    append([]string(nil), s.fields...),
		Transform: s.options.transform,
		PrefixLen: prefixLenFor(s.options),
		Window:    s.window,
	}
}

// sortKey builds the composite sort key for a record.
func (s *SortedNeighbourhood) sortKey(r record.Record) (string, bool) {
	key, ok := s.Generate(r)
	if !ok {
		return "", false
	}
	parts := make([]string, len(s.fields))
	for i, field := range s.fields {
		parts[i] = key[field]
	}
	return strings.Join(parts, "\x00"), true
}

type sortedEntry struct {
	index int
	key   string
}

func (s *SortedNeighbourhood) sorted(records []record.Record) []sortedEntry {
	entries := make([]sortedEntry, 0, len(records))
	for i, r := range records {
		if key, ok := s.sortKey(r); ok {
			entries = append(entries, sortedEntry{index: i, key: key})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].key != entries[j].key {
			return entries[i].key < entries[j].key
		}
		return entries[i].index < entries[j].index
	})
	return entries
}

// Pairs returns all pairs within the sliding window of the sort order.
func (s *SortedNeighbourhood) Pairs(records []record.Record) []Pair {
	entries := s.sorted(records)

	var pairs []Pair
	for i := range entries {
		for j := i + 1; j < len(entries) && j <= i+s.window; j++ {
			a, b := entries[i].index, entries[j].index
			if a > b {
				a, b = b, a
			}
			pairs = append(pairs, Pair{A: a, B: b})
		}
	}
	return sortPairs(dedupePairs(pairs))
}

// Candidates returns existing records within the window of the candidate's
// position in sort order.
func (s *SortedNeighbourhood) Candidates(candidate record.Record, existing []record.Record) []int {
	candidateKey, ok := s.sortKey(candidate)
	if !ok {
		return nil
	}

	entries := s.sorted(existing)
	// Position the candidate within the sorted entries.
	pos := sort.Search(len(entries), func(i int) bool {
		return entries[i].key >= candidateKey
	})

	lo := pos - s.window
	if lo < 0 {
		lo = 0
	}
	hi := pos + s.window
	if hi > len(entries) {
		hi = len(entries)
	}

	matches := make([]int, 0, hi-lo)
	for _, entry := range entries[lo:hi] {
		matches = append(matches, entry.index)
	}
	sort.Ints(matches)
	return matches
}

func dedupePairs(pairs []Pair) []Pair {
	seen := make(map[Pair]struct{}, len(pairs))
	out := pairs[:0]
	for _, p := range pairs {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

package blocking

import (
	"sort"

	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/record"
)

// Composite combines sub-strategies. In union mode a pair is a candidate
// when ANY sub-strategy matches it; in intersection mode only when ALL do.
type Composite struct {
	mode CompositeMode
	subs []Strategy
	name string
}

// NewComposite creates a composite strategy from sub-strategies.
func NewComposite(mode CompositeMode, subs ...Strategy) (*Composite, error) {
	if mode != ModeUnion && mode != ModeIntersection {
		return nil, errors.NewValidationError("mode", string(mode), "mode must be union or intersection")
	}
	if len(subs) == 0 {
		return nil, errors.NewValidationError("sub", nil, "at least one sub-strategy is required")
	}
	return &Composite{mode: mode, subs: subs}, nil
}

// WithName sets a cosmetic display name on the strategy.
func (c *Composite) WithName(name string) *Composite {
	c.name = name
	return c
}

// Generate merges the sub-strategy keys into one map. ok is false only when
// no sub-strategy could derive a key for the record.
func (c *Composite) Generate(r record.Record) (Key, bool) {
	merged := make(Key)
	derived := false
	for _, sub := range c.subs {
		key, ok := sub.Generate(r)
		if !ok {
			if c.mode == ModeIntersection {
				return nil, false
			}
			continue
		}
		derived = true
		for field, value := range key {
			merged[field] = value
		}
	}
	if !derived {
		return nil, false
	}
	return merged, true
}

// Descriptor returns the structured strategy description.
func (c *Composite) Descriptor() Descriptor {
	subs := make([]Descriptor, len(c.subs))
	for i, sub := range c.subs {
		subs[i] = sub.Descriptor()
	}
	fields := make([]string, 0)
	seen := make(map[string]struct{})
	for _, sd := range subs {
		for _, f := range sd.Fields {
			if _, dup := seen[f]; !dup {
				seen[f] = struct{}{}
				fields = append(fields, f)
			}
		}
	}
	sort.Strings(fields)
	return Descriptor{
		Kind:   KindComposite,
		Name:   c.name,
		Fields: fields,
		Mode:   c.mode,
		Sub:    subs,
	}
}

// Pairs combines sub-strategy pair sets per the composite mode.
func (c *Composite) Pairs(records []record.Record) []Pair {
	counts := make(map[Pair]int)
	for _, sub := range c.subs {
		for _, p := range sub.Pairs(records) {
			counts[p]++
		}
	}

	required := 1
	if c.mode == ModeIntersection {
		required = len(c.subs)
	}

	var pairs []Pair
	for p, n := range counts {
		if n >= required {
			pairs = append(pairs, p)
		}
	}
	return sortPairs(pairs)
}

// Candidates combines sub-strategy candidate sets per the composite mode.
func (c *Composite) Candidates(candidate record.Record, existing []record.Record) []int {
	counts := make(map[int]int)
	for _, sub := range c.subs {
		for _, i := range sub.Candidates(candidate, existing) {
			counts[i]++
		}
	}

	required := 1
	if c.mode == ModeIntersection {
		required = len(c.subs)
	}

	var matches []int
	for i, n := range counts {
		if n >= required {
			matches = append(matches, i)
		}
	}
	sort.Ints(matches)
	return matches
}

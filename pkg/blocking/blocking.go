// Package blocking provides candidate-grouping strategies that make pairwise
// record comparison tractable. A strategy derives a BlockingKey from a record;
// only records sharing a block are compared by the scoring engine.
//
// Strategies carry a structured Descriptor (kind plus typed parameters) so
// callers can introspect blocking fields without parsing display names.
package blocking

import (
	"sort"
	"strings"

	"github.com/agentstation/resolve/pkg/compare"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/record"
)

// Key maps field names to normalized values derived from a record.
// Keys group candidates; they are never persisted as identity.
type Key map[string]string

// String renders the key in a stable field order.
func (k Key) String() string {
	fields := make([]string, 0, len(k))
	for field := range k {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = field + "=" + k[field]
	}
	return strings.Join(parts, "|")
}

// Kind identifies a blocking strategy variant.
type Kind string

// Blocking strategy kinds.
const (
	KindStandard            Kind = "standard"
	KindSortedNeighbourhood Kind = "sorted-neighbourhood"
	KindComposite           Kind = "composite"
)

// Transform is an optional per-field normalization applied when deriving keys.
type Transform string

// Field transforms.
const (
	TransformNone      Transform = ""
	TransformSoundex   Transform = "soundex"
	TransformMetaphone Transform = "metaphone"
	TransformFirstN    Transform = "prefix"
)

// CompositeMode controls how composite sub-strategies combine.
type CompositeMode string

// Composite combination modes.
const (
	ModeUnion        CompositeMode = "union"
	ModeIntersection CompositeMode = "intersection"
)

// Descriptor is the structured description of a strategy: kind, field list,
// and mode-specific parameters. Name is purely cosmetic.
type Descriptor struct {
	Kind      Kind          `json:"kind" yaml:"kind"`
	Name      string        `json:"name,omitempty" yaml:"name,omitempty"`
	Fields    []string      `json:"fields,omitempty" yaml:"fields,omitempty"`
	Transform Transform     `json:"transform,omitempty" yaml:"transform,omitempty"`
	PrefixLen int           `json:"prefixLen,omitempty" yaml:"prefixLen,omitempty"`
	Window    int           `json:"window,omitempty" yaml:"window,omitempty"`
	Mode      CompositeMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	Sub       []Descriptor  `json:"sub,omitempty" yaml:"sub,omitempty"`
}

// Pair is a candidate pair of indices into the record slice handed to Pairs.
// A < B always holds.
type Pair struct {
	A, B int
}

// Strategy derives blocking keys and candidate pairs from records.
// A record missing a blocking field is excluded from that block; blocking
// never errors and never removes a record from the overall universe.
type Strategy interface {
	// Generate derives the blocking key for a record. ok is false when the
	// record lacks one of the strategy's fields.
	Generate(r record.Record) (key Key, ok bool)

	// Descriptor returns the structured strategy description.
	Descriptor() Descriptor

	// Pairs returns all candidate pairs among records, by index.
	Pairs(records []record.Record) []Pair

	// Candidates returns indices of existing records that share a block
	// with the candidate.
	Candidates(candidate record.Record, existing []record.Record) []int
}

// FromDescriptor reconstructs a strategy from its structured description.
func FromDescriptor(d Descriptor) (Strategy, error) {
	switch d.Kind {
	case KindStandard:
		s, err := NewStandard(d.Fields, WithTransform(d.Transform), WithPrefixLen(d.PrefixLen))
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindSortedNeighbourhood:
		return NewSortedNeighbourhood(d.Fields, d.Window, WithTransform(d.Transform), WithPrefixLen(d.PrefixLen))
	case KindComposite:
		subs := make([]Strategy, 0, len(d.Sub))
		for _, sd := range d.Sub {
			sub, err := FromDescriptor(sd)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
		return NewComposite(d.Mode, subs...)
	}
	return nil, errors.NewValidationError("kind", string(d.Kind), "unknown blocking strategy kind")
}

// KeyNormalizer returns the per-field normalization this strategy applies
// when deriving key values. Stores use it to fold record fields the same
// way before comparing them against a stored key, so transformed keys
// (soundex, metaphone, prefixes) still match raw record fields.
func (d Descriptor) KeyNormalizer() func(field string, v any) string {
	options := map[string]fieldOptions{}
	d.collectFieldOptions(options)
	plain := fieldOptions{prefixLen: 3}
	return func(field string, v any) string {
		if o, ok := options[field]; ok {
			return o.normalizeValue(v)
		}
		return plain.normalizeValue(v)
	}
}

// collectFieldOptions maps each key field to its derivation options.
// Later composite sub-strategies overwrite earlier ones, matching how
// composite key generation merges sub keys.
func (d Descriptor) collectFieldOptions(into map[string]fieldOptions) {
	switch d.Kind {
	case KindStandard, KindSortedNeighbourhood:
		o := fieldOptions{transform: d.Transform, prefixLen: d.PrefixLen}
		if o.prefixLen <= 0 {
			o.prefixLen = 3
		}
		for _, field := range d.Fields {
			into[field] = o
		}
	case KindComposite:
		for _, sd := range d.Sub {
			sd.collectFieldOptions(into)
		}
	}
}

// fieldOption configures key derivation shared by standard and
// sorted-neighbourhood strategies.
type fieldOptions struct {
	transform Transform
	prefixLen int
}

// FieldOption configures per-field key derivation.
type FieldOption func(*fieldOptions)

// WithTransform applies a phonetic or prefix transform to field values.
func WithTransform(t Transform) FieldOption {
	return func(o *fieldOptions) {
		o.transform = t
	}
}

// WithPrefixLen sets the prefix length for TransformFirstN.
func WithPrefixLen(n int) FieldOption {
	return func(o *fieldOptions) {
		o.prefixLen = n
	}
}

func applyFieldOptions(opts []FieldOption) fieldOptions {
	options := fieldOptions{prefixLen: 3}
	for _, opt := range opts {
		opt(&options)
	}
	if options.prefixLen <= 0 {
		options.prefixLen = 3
	}
	return options
}

// sortPairs orders pairs for deterministic output.
func sortPairs(pairs []Pair) []Pair {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

// normalizeValue derives the normalized key value for one field.
func (o fieldOptions) normalizeValue(v any) string {
	s := strings.ToLower(strings.TrimSpace(record.CoerceString(v)))
	s = strings.Join(strings.Fields(s), " ")

	switch o.transform {
	case TransformSoundex:
		return compare.SoundexEncode(s)
	case TransformMetaphone:
		return compare.MetaphoneEncode(s, 0)
	case TransformFirstN:
		runes := []rune(s)
		if len(runes) > o.prefixLen {
			return string(runes[:o.prefixLen])
		}
		return s
	}
	return s
}

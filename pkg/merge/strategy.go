package merge

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/provenance"
	"github.com/agentstation/resolve/pkg/record"
)

// Strategy names a per-field merge rule.
type Strategy string

// Field merge strategies.
const (
	PreferFirst   Strategy = "preferFirst"
	PreferLast    Strategy = "preferLast"
	PreferNewer   Strategy = "preferNewer"
	PreferOlder   Strategy = "preferOlder"
	PreferNonNull Strategy = "preferNonNull"
	PreferLonger  Strategy = "preferLonger"
	PreferShorter Strategy = "preferShorter"
	Concatenate   Strategy = "concatenate"
	Union         Strategy = "union"
	MostFrequent  Strategy = "mostFrequent"
	Average       Strategy = "average"
	Sum           Strategy = "sum"
	Min           Strategy = "min"
	Max           Strategy = "max"
	Custom        Strategy = "custom"
)

var knownStrategies = map[Strategy]struct{}{
	PreferFirst: {}, PreferLast: {}, PreferNewer: {}, PreferOlder: {},
	PreferNonNull: {}, PreferLonger: {}, PreferShorter: {},
	Concatenate: {}, Union: {}, MostFrequent: {},
	Average: {}, Sum: {}, Min: {}, Max: {}, Custom: {},
}

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	_, ok := knownStrategies[s]
	return ok
}

// CustomFunc resolves a field from all source contributions. Returning an
// error counts as a strategy violation handled per the conflict policy.
type CustomFunc func(values []provenance.Value, sources []record.SourceRecord, opts FieldOptions) (any, error)

// FieldOptions tunes individual strategies.
type FieldOptions struct {
	// Separator joins concatenated values. Defaults to ", ".
	Separator string `json:"separator,omitempty" yaml:"separator,omitempty"`

	// Dedupe drops repeated values before concatenation.
	Dedupe bool `json:"dedupe,omitempty" yaml:"dedupe,omitempty"`

	// DateField overrides the record timestamp used by preferNewer and
	// preferOlder for this field.
	DateField string `json:"dateField,omitempty" yaml:"dateField,omitempty"`
}

// FieldStrategy binds a strategy with its options for one field.
type FieldStrategy struct {
	Strategy Strategy     `json:"strategy" yaml:"strategy"`
	Options  FieldOptions `json:"options,omitempty" yaml:"options,omitempty"`
	Func     CustomFunc   `json:"-" yaml:"-"`
}

// violation is a strategy-inapplicability error. It is resolved per the
// configured conflict policy rather than surfaced directly.
type violation struct {
	reason string
}

func (v *violation) Error() string {
	return v.reason
}

func violationf(format string, args ...any) error {
	return &violation{reason: fmt.Sprintf(format, args...)}
}

// resolve applies a field strategy to the contributions. winner is the
// source record id when the strategy selects a single contribution.
func (e *Executor) resolve(field string, fs FieldStrategy, values []provenance.Value, sources []record.SourceRecord) (value any, winner string, err error) {
	switch fs.Strategy {
	case PreferFirst:
		return values[0].Value, values[0].SourceRecordID, nil

	case PreferLast:
		last := values[len(values)-1]
		return last.Value, last.SourceRecordID, nil

	case PreferNonNull:
		for _, v := range values {
			if !record.IsEmpty(v.Value) {
				return v.Value, v.SourceRecordID, nil
			}
		}
		return values[0].Value, values[0].SourceRecordID, nil

	case PreferNewer, PreferOlder:
		return e.resolveTemporal(fs, values, sources)

	case PreferLonger, PreferShorter:
		best := values[0]
		bestLen := len(record.CoerceString(best.Value))
		for _, v := range values[1:] {
			l := len(record.CoerceString(v.Value))
			if (fs.Strategy == PreferLonger && l > bestLen) || (fs.Strategy == PreferShorter && l < bestLen) {
				best, bestLen = v, l
			}
		}
		return best.Value, best.SourceRecordID, nil

	case Concatenate:
		return concatenate(values, fs.Options), "", nil

	case Union:
		return union(values)

	case MostFrequent:
		return mostFrequent(values)

	case Average, Sum, Min, Max:
		return aggregate(fs.Strategy, values)

	case Custom:
		if fs.Func == nil {
			return nil, "", errors.NewValidationError("strategy", Custom, "custom strategy requires a function")
		}
		v, err := fs.Func(values, sources, fs.Options)
		if err != nil {
			return nil, "", violationf("custom strategy: %v", err)
		}
		return v, "", nil
	}

	return nil, "", errors.NewValidationError("strategy", fs.Strategy, "unknown merge strategy")
}

// resolveTemporal picks the newest or oldest contribution by timestamp.
// Every contributing source must carry a resolvable timestamp; ties fall
// back to source order.
func (e *Executor) resolveTemporal(fs FieldStrategy, values []provenance.Value, sources []record.SourceRecord) (any, string, error) {
	byID := make(map[string]record.SourceRecord, len(sources))
	for _, src := range sources {
		byID[src.ID] = src
	}

	type stamped struct {
		provenance.Value
		at time.Time
	}

	stampedValues := make([]stamped, 0, len(values))
	for _, v := range values {
		src := byID[v.SourceRecordID]
		at, ok := e.timestampFor(src, fs.Options.DateField)
		if !ok {
			return nil, "", violationf("source %s has no resolvable timestamp for temporal strategy %s", v.SourceRecordID, fs.Strategy)
		}
		stampedValues = append(stampedValues, stamped{Value: v, at: at})
	}

	best := stampedValues[0]
	for _, sv := range stampedValues[1:] {
		if (fs.Strategy == PreferNewer && sv.at.After(best.at)) || (fs.Strategy == PreferOlder && sv.at.Before(best.at)) {
			best = sv
		}
	}
	return best.Value.Value, best.SourceRecordID, nil
}

// timestampFor resolves the merge timestamp for a source: the per-field
// date field, then the configured timestamp field, then the snapshot's
// UpdatedAt.
func (e *Executor) timestampFor(src record.SourceRecord, dateField string) (time.Time, bool) {
	if dateField != "" {
		if v, ok := src.Record.Field(dateField); ok {
			return record.CoerceTime(v)
		}
		return time.Time{}, false
	}
	if e.config.TimestampField != "" {
		if v, ok := src.Record.Field(e.config.TimestampField); ok {
			if t, ok := record.CoerceTime(v); ok {
				return t, true
			}
		}
	}
	if !src.UpdatedAt.IsZero() {
		return src.UpdatedAt, true
	}
	return time.Time{}, false
}

// concatenate joins contributions with the separator, flattening arrays
// and string-coercing scalars.
func concatenate(values []provenance.Value, opts FieldOptions) string {
	separator := opts.Separator
	if separator == "" {
		separator = ", "
	}

	var parts []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if opts.Dedupe {
			if _, dup := seen[s]; dup {
				return
			}
			seen[s] = struct{}{}
		}
		parts = append(parts, s)
	}

	for _, v := range values {
		if arr, ok := record.CoerceArray(v.Value); ok {
			for _, item := range arr {
				add(record.CoerceString(item))
			}
			continue
		}
		add(record.CoerceString(v.Value))
	}
	return strings.Join(parts, separator)
}

// union computes an order-stable set union of array contributions; the
// first occurrence of each element is kept. Non-array contributions are
// violations.
func union(values []provenance.Value) (any, string, error) {
	var out []any
	for _, v := range values {
		arr, ok := record.CoerceArray(v.Value)
		if !ok {
			return nil, "", violationf("union strategy requires array values, source %s holds %T", v.SourceRecordID, v.Value)
		}
		for _, item := range arr {
			duplicate := false
			for _, existing := range out {
				if record.Equal(existing, item) {
					duplicate = true
					break
				}
			}
			if !duplicate {
				out = append(out, item)
			}
		}
	}
	return out, "", nil
}

// mostFrequent picks the highest-occurrence contribution; ties keep the
// first occurring value.
func mostFrequent(values []provenance.Value) (any, string, error) {
	type group struct {
		value provenance.Value
		count int
	}

	var groups []*group
	for _, v := range values {
		matched := false
		for _, g := range groups {
			if record.Equal(g.value.Value, v.Value) {
				g.count++
				matched = true
				break
			}
		}
		if !matched {
			groups = append(groups, &group{value: v, count: 1})
		}
	}

	best := groups[0]
	for _, g := range groups[1:] {
		if g.count > best.count {
			best = g
		}
	}
	return best.value.Value, best.value.SourceRecordID, nil
}

// aggregate computes a numeric aggregate over the numeric contributions.
// No numeric contribution at all is a violation.
func aggregate(strategy Strategy, values []provenance.Value) (any, string, error) {
	var nums []float64
	for _, v := range values {
		if n, ok := record.CoerceNumber(v.Value); ok {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return nil, "", violationf("%s strategy found no numeric values", strategy)
	}

	switch strategy {
	case Sum, Average:
		total := 0.0
		for _, n := range nums {
			total += n
		}
		if strategy == Sum {
			return total, "", nil
		}
		return total / float64(len(nums)), "", nil
	case Min:
		m := nums[0]
		for _, n := range nums[1:] {
			if n < m {
				m = n
			}
		}
		return m, "", nil
	case Max:
		m := nums[0]
		for _, n := range nums[1:] {
			if n > m {
				m = n
			}
		}
		return m, "", nil
	}
	return nil, "", violationf("%s is not a numeric strategy", strategy)
}

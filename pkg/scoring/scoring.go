// Package scoring combines field comparators, weights, and thresholds into a
// per-pair match classification. Scoring is pure and deterministic: identical
// inputs always yield identical results, so outputs are safe to cache and
// replay in tests.
package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agentstation/resolve/pkg/compare"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/record"
)

// Outcome classifies a scored pair.
type Outcome string

// Pair outcomes.
const (
	OutcomeNoMatch   Outcome = "no-match"
	OutcomePotential Outcome = "potential-match"
	OutcomeDefinite  Outcome = "definite-match"
)

// Default classification thresholds.
const (
	DefaultNoMatchThreshold       = 0.4
	DefaultDefiniteMatchThreshold = 0.85
)

// FieldConfig configures scoring for one record field.
type FieldConfig struct {
	// Field is the record field name to compare.
	Field string `json:"field" yaml:"field"`

	// Comparator names a registered comparator (exact, levenshtein,
	// jaroWinkler, soundex, metaphone). Ignored when Func is set.
	Comparator string `json:"comparator" yaml:"comparator"`

	// Func overrides Comparator with a caller-supplied function.
	Func compare.Func `json:"-" yaml:"-"`

	// Weight is the field's relative contribution. Must be positive.
	Weight float64 `json:"weight" yaml:"weight"`

	// Threshold is the per-field floor: a raw score below it contributes
	// zero to the weighted sum while its weight stays in the denominator.
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`

	// Options tunes the comparator. Nil uses compare.DefaultOptions.
	Options *compare.Options `json:"-" yaml:"-"`
}

// Config configures the scoring engine for a pair of records.
type Config struct {
	Fields []FieldConfig `json:"fields" yaml:"fields"`

	// NoMatchThreshold: totalScore strictly below it classifies as no-match.
	NoMatchThreshold float64 `json:"noMatchThreshold" yaml:"noMatchThreshold"`

	// DefiniteMatchThreshold: totalScore at or above it classifies as
	// definite-match. The boundary is inclusive.
	DefiniteMatchThreshold float64 `json:"definiteMatchThreshold" yaml:"definiteMatchThreshold"`
}

// FieldScore is the scored contribution of a single field.
type FieldScore struct {
	Field   string  `json:"field"`
	Score   float64 `json:"score"` // raw comparator score in [0,1]
	Method  string  `json:"method"`
	Details string  `json:"details,omitempty"`
}

// MatchResult is the classification of one record pair.
type MatchResult struct {
	TotalScore  float64      `json:"totalScore"`
	FieldScores []FieldScore `json:"fieldScores"`
	Outcome     Outcome      `json:"outcome"`
}

// Explanation renders a human-readable account of the result, used when a
// pair is routed to the review queue.
func (m MatchResult) Explanation() string {
	parts := make([]string, 0, len(m.FieldScores)+1)
	parts = append(parts, fmt.Sprintf("total %.3f (%s)", m.TotalScore, m.Outcome))
	for _, fs := range m.FieldScores {
		part := fmt.Sprintf("%s=%.3f via %s", fs.Field, fs.Score, fs.Method)
		if fs.Details != "" {
			part += " (" + fs.Details + ")"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}

// Engine scores record pairs against a fixed configuration.
type Engine struct {
	config Config
	fns    []compare.Func
}

// NewEngine validates the configuration and resolves comparators.
func NewEngine(config Config) (*Engine, error) {
	if len(config.Fields) == 0 {
		return nil, errors.NewValidationError("fields", nil, "at least one scoring field is required")
	}
	if config.NoMatchThreshold == 0 && config.DefiniteMatchThreshold == 0 {
		config.NoMatchThreshold = DefaultNoMatchThreshold
		config.DefiniteMatchThreshold = DefaultDefiniteMatchThreshold
	}
	if config.NoMatchThreshold < 0 || config.DefiniteMatchThreshold > 1 {
		return nil, errors.NewValidationError("thresholds", config, "thresholds must lie within [0,1]")
	}
	if config.NoMatchThreshold > config.DefiniteMatchThreshold {
		return nil, errors.NewValidationError("thresholds", config, "noMatchThreshold must not exceed definiteMatchThreshold")
	}

	fns := make([]compare.Func, len(config.Fields))
	for i, fc := range config.Fields {
		if fc.Field == "" {
			return nil, errors.NewValidationError("field", fc, "field name is required")
		}
		if fc.Weight <= 0 {
			return nil, errors.NewValidationError("weight", fc.Weight, "weight must be positive")
		}
		if fc.Threshold < 0 || fc.Threshold > 1 {
			return nil, errors.NewValidationError("threshold", fc.Threshold, "per-field threshold must lie within [0,1]")
		}
		if fc.Func != nil {
			fns[i] = fc.Func
			continue
		}
		fn, err := compare.Lookup(fc.Comparator)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}

	return &Engine{config: config, fns: fns}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Score compares two records field by field: each comparator score is
// multiplied by its weight and summed, then normalized by the total weight
// so thresholds operate on [0,1] regardless of weight scale. A field whose
// raw score falls below its per-field threshold contributes zero to the
// numerator while its weight stays in the denominator.
func (e *Engine) Score(a, b record.Record) MatchResult {
	fieldScores := make([]FieldScore, 0, len(e.config.Fields))

	var weightedSum, totalWeight float64
	for i, fc := range e.config.Fields {
		av := a[fc.Field]
		bv := b[fc.Field]

		raw := clamp(e.fns[i](av, bv, fc.Options))

		fs := FieldScore{
			Field:  fc.Field,
			Score:  raw,
			Method: methodName(fc),
		}

		contribution := raw
		if fc.Threshold > 0 && raw < fc.Threshold {
			contribution = 0
			fs.Details = fmt.Sprintf("below field threshold %.2f, contributes 0", fc.Threshold)
		}

		weightedSum += contribution * fc.Weight
		totalWeight += fc.Weight
		fieldScores = append(fieldScores, fs)
	}

	total := 0.0
	if totalWeight > 0 {
		total = weightedSum / totalWeight
	}

	sort.SliceStable(fieldScores, func(i, j int) bool {
		return fieldScores[i].Field < fieldScores[j].Field
	})

	return MatchResult{
		TotalScore:  total,
		FieldScores: fieldScores,
		Outcome:     e.Classify(total),
	}
}

// Classify maps a total score onto an outcome. The definite-match boundary
// is inclusive; the no-match boundary is strict.
func (e *Engine) Classify(total float64) Outcome {
	switch {
	case total >= e.config.DefiniteMatchThreshold:
		return OutcomeDefinite
	case total < e.config.NoMatchThreshold:
		return OutcomeNoMatch
	default:
		return OutcomePotential
	}
}

func methodName(fc FieldConfig) string {
	if fc.Func != nil && fc.Comparator == "" {
		return "custom"
	}
	return fc.Comparator
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

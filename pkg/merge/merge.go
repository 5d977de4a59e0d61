// Package merge applies per-field strategies to N source records, producing
// a golden record with full field-level provenance. Merging is deterministic
// given stable source ordering: re-running on identical inputs and config
// reproduces an identical golden record and field sources (timestamps
// excepted).
//
// A merge never partially succeeds: under ConflictError policy the whole
// computation aborts with *errors.ConflictError and no golden record is
// produced. Conflict aborts are ordinary error returns so batch callers can
// continue with their remaining pairs.
package merge

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/logging"
	"github.com/agentstation/resolve/pkg/provenance"
	"github.com/agentstation/resolve/pkg/record"
)

// ConflictResolution selects how strategy violations and value conflicts
// are handled.
type ConflictResolution string

// Conflict resolution policies.
const (
	// ConflictError aborts the whole merge atomically when any field holds
	// conflicting values or a strategy cannot be applied.
	ConflictError ConflictResolution = "error"

	// ConflictUseDefault silently resolves violations via the default
	// strategy.
	ConflictUseDefault ConflictResolution = "useDefault"

	// ConflictMark resolves via the default strategy but records a conflict
	// entry for later review.
	ConflictMark ConflictResolution = "markConflict"
)

// Config configures a merge.
type Config struct {
	// FieldStrategies overrides the strategy per field name.
	FieldStrategies map[string]FieldStrategy `json:"fieldStrategies,omitempty" yaml:"fieldStrategies,omitempty"`

	// DefaultStrategy applies to fields without an override. Defaults to
	// preferFirst.
	DefaultStrategy FieldStrategy `json:"defaultStrategy,omitempty" yaml:"defaultStrategy,omitempty"`

	// TimestampField is the record field consulted by temporal strategies
	// when no per-field date field is set. Defaults to "updatedAt".
	TimestampField string `json:"timestampField,omitempty" yaml:"timestampField,omitempty"`

	// TrackProvenance controls whether field-level provenance is built.
	// Top-level provenance (ids, mergedAt) is always produced.
	TrackProvenance bool `json:"trackProvenance" yaml:"trackProvenance"`

	// ConflictResolution defaults to markConflict.
	ConflictResolution ConflictResolution `json:"conflictResolution,omitempty" yaml:"conflictResolution,omitempty"`

	// GoldenRecordID is the id assigned to the golden record. When empty
	// the first source record's id is reused, so the golden record
	// supersedes that source and its id always appears among the
	// provenance source record ids.
	GoldenRecordID string `json:"goldenRecordId,omitempty" yaml:"goldenRecordId,omitempty"`

	// MergedBy and QueueItemID stamp the provenance row.
	MergedBy    string `json:"mergedBy,omitempty" yaml:"mergedBy,omitempty"`
	QueueItemID string `json:"queueItemId,omitempty" yaml:"queueItemId,omitempty"`
}

// Conflict describes a field whose sources disagreed or whose strategy
// could not be applied.
type Conflict struct {
	Field      string             `json:"field"`
	Values     []provenance.Value `json:"values"`
	Reason     string             `json:"reason"`
	Resolution ConflictResolution `json:"resolution"`
	Resolved   any                `json:"resolved,omitempty"`
}

// Stats summarizes a merge.
type Stats struct {
	SourceCount   int `json:"sourceCount"`
	FieldCount    int `json:"fieldCount"`
	ConflictCount int `json:"conflictCount"`
}

// Result is the outcome of a successful merge.
type Result struct {
	GoldenRecord   record.Record          `json:"goldenRecord"`
	GoldenRecordID string                 `json:"goldenRecordId"`
	Provenance     *provenance.Provenance `json:"provenance"`
	SourceRecords  []record.SourceRecord  `json:"sourceRecords"`
	Conflicts      []Conflict             `json:"conflicts,omitempty"`
	Stats          Stats                  `json:"stats"`
}

// Executor merges source records according to a Config.
type Executor struct {
	config Config
	logger *zerolog.Logger
	now    func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger injects a logger. Defaults to the Nop logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock injects the timestamp source, for reproducible tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor creates a merge executor. The config is validated eagerly so
// batch callers fail fast on malformed strategy names.
func NewExecutor(config Config, opts ...Option) (*Executor, error) {
	if config.DefaultStrategy.Strategy == "" {
		config.DefaultStrategy.Strategy = PreferFirst
	}
	if config.TimestampField == "" {
		config.TimestampField = "updatedAt"
	}
	if config.ConflictResolution == "" {
		config.ConflictResolution = ConflictMark
	}

	switch config.ConflictResolution {
	case ConflictError, ConflictUseDefault, ConflictMark:
	default:
		return nil, errors.NewValidationError("conflictResolution", config.ConflictResolution, "must be error, useDefault, or markConflict")
	}
	if !config.DefaultStrategy.Strategy.Valid() {
		return nil, errors.NewValidationError("defaultStrategy", config.DefaultStrategy.Strategy, "unknown merge strategy")
	}
	for field, fs := range config.FieldStrategies {
		if !fs.Strategy.Valid() {
			return nil, errors.NewValidationError(field, fs.Strategy, "unknown merge strategy")
		}
	}

	e := &Executor{
		config: config,
		logger: &logging.Nop,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the executor's configuration.
func (e *Executor) Config() Config {
	return e.config
}

// Merge combines the source records into a golden record. Sources must be
// non-empty and carry stable ids; their order determines preferFirst and
// tie-breaking semantics.
func (e *Executor) Merge(sources []record.SourceRecord) (*Result, error) {
	if len(sources) == 0 {
		return nil, errors.NewValidationError("sources", nil, "at least one source record is required")
	}
	sourceIDs := make([]string, len(sources))
	for i, src := range sources {
		if src.ID == "" {
			return nil, errors.NewValidationError("sources", i, "source record lacks a stable id")
		}
		sourceIDs[i] = src.ID
	}

	goldenID := e.config.GoldenRecordID
	if goldenID == "" {
		goldenID = sourceIDs[0]
	}

	golden := record.Record{"id": goldenID}
	fieldSources := make(map[string]provenance.Field)
	var conflicts []Conflict
	var abortFields []string

	for _, field := range fieldNames(sources) {
		values := contributions(field, sources)
		if len(values) == 0 {
			continue
		}

		hadConflict := hasConflict(values)
		if e.config.ConflictResolution == ConflictError && hadConflict {
			abortFields = append(abortFields, field)
			continue
		}

		fs := e.strategyFor(field)
		value, winner, err := e.resolve(field, fs, values, sources)
		resolution := ConflictResolution("")

		if err != nil {
			var v *violation
			if !errors.As(err, &v) {
				return nil, err // configuration error, not a data conflict
			}
			if e.config.ConflictResolution == ConflictError {
				abortFields = append(abortFields, field)
				continue
			}

			// Fall back to the default strategy for this field.
			resolution = e.config.ConflictResolution
			value, winner, err = e.resolve(field, e.config.DefaultStrategy, values, sources)
			if err != nil {
				return nil, errors.NewConflictError([]string{field})
			}
			if e.config.ConflictResolution == ConflictMark {
				conflicts = append(conflicts, Conflict{
					Field:      field,
					Values:     values,
					Reason:     v.reason,
					Resolution: resolution,
					Resolved:   value,
				})
			}
			e.logger.Warn().
				Str("field", field).
				Str("strategy", string(fs.Strategy)).
				Str("resolution", string(resolution)).
				Msg("strategy violation resolved via default strategy")
		} else if hadConflict && e.config.ConflictResolution == ConflictMark {
			conflicts = append(conflicts, Conflict{
				Field:      field,
				Values:     values,
				Reason:     "sources hold differing non-null values",
				Resolution: ConflictMark,
				Resolved:   value,
			})
		}

		golden[field] = value

		if e.config.TrackProvenance {
			applied := fs.Strategy
			if resolution != "" {
				applied = e.config.DefaultStrategy.Strategy
			}
			fieldSources[field] = provenance.Field{
				SourceRecordID:     winner,
				StrategyApplied:    string(applied),
				AllValues:          values,
				HadConflict:        hadConflict,
				ConflictResolution: string(resolution),
			}
		}
	}

	if len(abortFields) > 0 {
		sort.Strings(abortFields)
		return nil, errors.NewConflictError(abortFields)
	}

	prov := &provenance.Provenance{
		GoldenRecordID:  goldenID,
		SourceRecordIDs: sourceIDs,
		MergedAt:        e.now().UTC(),
		MergedBy:        e.config.MergedBy,
		QueueItemID:     e.config.QueueItemID,
		FieldSources:    fieldSources,
		StrategyUsed:    string(e.config.DefaultStrategy.Strategy),
	}

	return &Result{
		GoldenRecord:   golden,
		GoldenRecordID: goldenID,
		Provenance:     prov,
		SourceRecords:  sources,
		Conflicts:      conflicts,
		Stats: Stats{
			SourceCount:   len(sources),
			FieldCount:    len(golden) - 1, // id excluded
			ConflictCount: len(conflicts),
		},
	}, nil
}

// strategyFor returns the field's strategy override or the default.
func (e *Executor) strategyFor(field string) FieldStrategy {
	if fs, ok := e.config.FieldStrategies[field]; ok {
		return fs
	}
	return e.config.DefaultStrategy
}

// fieldNames collects the union of field names across sources in sorted
// order. The id field is never merged; the golden record gets its own.
func fieldNames(sources []record.SourceRecord) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, src := range sources {
		for name := range src.Record {
			if name == "id" {
				continue
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// contributions collects the non-null values for a field in source order.
func contributions(field string, sources []record.SourceRecord) []provenance.Value {
	var values []provenance.Value
	for _, src := range sources {
		v, ok := src.Record.Field(field)
		if !ok {
			continue
		}
		values = append(values, provenance.Value{SourceRecordID: src.ID, Value: v})
	}
	return values
}

// hasConflict reports whether two or more contributions differ.
func hasConflict(values []provenance.Value) bool {
	for i := 1; i < len(values); i++ {
		if !record.Equal(values[0].Value, values[i].Value) {
			return true
		}
	}
	return false
}

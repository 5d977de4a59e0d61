// Package provenance defines the audit records produced by merges. A
// Provenance row maps every golden-record field to its contributing sources
// and the strategy that resolved it. Rows are created at merge time and are
// never deleted: unmerge only flips the unmerged flags, preserving the audit
// trail permanently.
package provenance

import "time"

// Value is one source's contribution to a field.
type Value struct {
	SourceRecordID string `json:"sourceRecordId"`
	Value          any    `json:"value"`
}

// Field records how a single golden-record field was resolved.
type Field struct {
	// SourceRecordID is the winning source, when the strategy has a single
	// winner (prefer* and mostFrequent). Aggregates leave it empty.
	SourceRecordID string `json:"sourceRecordId,omitempty"`

	// StrategyApplied names the strategy that produced the value.
	StrategyApplied string `json:"strategyApplied"`

	// AllValues holds every source contribution so conflicts stay
	// computable independent of how the field was resolved.
	AllValues []Value `json:"allValues"`

	// HadConflict is true whenever two or more sources held different
	// non-null values, regardless of which strategy resolved them.
	HadConflict bool `json:"hadConflict"`

	// ConflictResolution records the policy applied when the field's
	// strategy could not be applied directly.
	ConflictResolution string `json:"conflictResolution,omitempty"`
}

// Provenance is the audit record for one golden record.
type Provenance struct {
	GoldenRecordID  string           `json:"goldenRecordId"`
	SourceRecordIDs []string         `json:"sourceRecordIds"`
	MergedAt        time.Time        `json:"mergedAt"`
	MergedBy        string           `json:"mergedBy,omitempty"`
	QueueItemID     string           `json:"queueItemId,omitempty"`
	FieldSources    map[string]Field `json:"fieldSources"`
	StrategyUsed    string           `json:"strategyUsed"`

	// Unmerge flags. Set once by MarkUnmerged; the row itself is permanent.
	Unmerged      bool       `json:"unmerged,omitempty"`
	UnmergedAt    *time.Time `json:"unmergedAt,omitempty"`
	UnmergedBy    string     `json:"unmergedBy,omitempty"`
	UnmergeReason string     `json:"unmergeReason,omitempty"`
}

// MarkUnmerged flips the unmerge flags. The provenance row is mutated in
// place and must still be persisted by the caller.
func (p *Provenance) MarkUnmerged(at time.Time, by, reason string) {
	p.Unmerged = true
	p.UnmergedAt = &at
	p.UnmergedBy = by
	p.UnmergeReason = reason
}

// ConflictFields returns the fields flagged as conflicted, in no
// particular order.
func (p *Provenance) ConflictFields() []string {
	var fields []string
	for name, field := range p.FieldSources {
		if field.HadConflict {
			fields = append(fields, name)
		}
	}
	return fields
}

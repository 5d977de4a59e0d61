// Package record defines the value model shared by the resolve engine.
// A Record is an opaque, caller-owned map of named fields; the engine never
// mutates one in place. Helpers here classify and coerce field values so that
// comparators and merge strategies agree on what "null", "numeric", and
// "array" mean.
package record

import (
	"fmt"
	"maps"
	"reflect"
	"time"
)

// Record is a caller-owned map of named fields. The engine treats it as
// immutable: operations that need a modified view work on a clone.
type Record map[string]any

// ID returns the value of the record's "id" field as a string,
// or "" when the record has no stable identifier.
func (r Record) ID() string {
	v, ok := r["id"]
	if !ok || IsNull(v) {
		return ""
	}
	return CoerceString(v)
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Field returns the named field value and whether it is present and non-null.
func (r Record) Field(name string) (any, bool) {
	v, ok := r[name]
	if !ok || IsNull(v) {
		return nil, false
	}
	return v, true
}

// SourceRecord is an immutable snapshot of a record taken before a merge.
// Archived snapshots are what unmerge restores.
type SourceRecord struct {
	ID        string    `json:"id" yaml:"id"`
	Record    Record    `json:"record" yaml:"record"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// NewSourceRecord snapshots a record. The record's own createdAt/updatedAt
// fields are used when they parse as timestamps; otherwise now is stamped.
func NewSourceRecord(r Record, now time.Time) SourceRecord {
	src := SourceRecord{
		ID:        r.ID(),
		Record:    r.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if t, ok := timeField(r, "createdAt"); ok {
		src.CreatedAt = t
	}
	if t, ok := timeField(r, "updatedAt"); ok {
		src.UpdatedAt = t
	}
	return src
}

func timeField(r Record, name string) (time.Time, bool) {
	v, ok := r.Field(name)
	if !ok {
		return time.Time{}, false
	}
	return CoerceTime(v)
}

// IsNull reports whether a field value counts as null for comparison and
// merge purposes: nil, empty string, typed nil pointers via interface.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return false // empty string is a value for comparators; see IsEmpty
	case *string:
		return t == nil
	case time.Time:
		return t.IsZero()
	}
	return false
}

// IsEmpty reports whether a value is null or an empty string/slice.
// Merge's preferNonNull strategy skips empty values; comparators do not.
func IsEmpty(v any) bool {
	if IsNull(v) {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}

// CoerceString renders a value for string comparators. Strings pass through,
// everything comparable is formatted the way fmt renders it.
func CoerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%v", v)
}

// CoerceNumber extracts a float64 from numeric field values.
func CoerceNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// CoerceArray extracts a []any from slice field values.
func CoerceArray(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// CoerceTime extracts a timestamp from time.Time or RFC 3339 string values.
func CoerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// Equal compares two field values without cross-type coercion.
// time.Time values compare at millisecond precision. Slices and maps
// compare element-wise.
func Equal(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok && bok {
		return at.UnixMilli() == bt.UnixMilli()
	}
	if aok != bok {
		return false
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.IsValid() && rb.IsValid() && (!ra.Comparable() || !rb.Comparable()) {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

package adapter

import (
	"sort"
	"strings"

	"github.com/agentstation/resolve/pkg/record"
)

// ApplyQueryOptions orders, pages, and projects a result set in memory.
// Adapters backed by a real query engine push what they can into the
// query and use this for the rest.
func ApplyQueryOptions(records []record.Record, opts *QueryOptions) []record.Record {
	if opts == nil {
		return records
	}
	if opts.OrderBy != nil {
		field := opts.OrderBy.Field
		desc := opts.OrderBy.Direction == SortDesc
		sort.SliceStable(records, func(i, j int) bool {
			a, _ := records[i].Field(field)
			b, _ := records[j].Field(field)
			if desc {
				return lessValue(b, a)
			}
			return lessValue(a, b)
		})
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(records) {
			return nil
		}
		records = records[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(records) {
		records = records[:opts.Limit]
	}
	if len(opts.Fields) > 0 {
		projected := make([]record.Record, len(records))
		for i, r := range records {
			p := record.Record{}
			if id := r.ID(); id != "" {
				p["id"] = id
			}
			for _, f := range opts.Fields {
				if v, ok := r[f]; ok {
					p[f] = v
				}
			}
			projected[i] = p
		}
		records = projected
	}
	return records
}

// lessValue orders two field values: numerically when both are numbers,
// chronologically when both are times, lexically otherwise.
func lessValue(a, b any) bool {
	if an, ok := record.CoerceNumber(a); ok {
		if bn, ok := record.CoerceNumber(b); ok {
			return an < bn
		}
	}
	if at, ok := record.CoerceTime(a); ok {
		if bt, ok := record.CoerceTime(b); ok {
			return at.Before(bt)
		}
	}
	return record.CoerceString(a) < record.CoerceString(b)
}

// MatchesBlockingKeys reports whether a record's fields equal all of the
// given key values. Key values arrive already normalized by the blocking
// strategy, so the record's raw fields must pass through the same
// derivation before comparing: normalize is that derivation, typically
// Descriptor.KeyNormalizer from the blocking package. When normalize is
// nil only case and whitespace are folded, which suffices for untransformed
// keys.
func MatchesBlockingKeys(r record.Record, keys map[string]string, normalize func(field string, v any) string) bool {
	for field, want := range keys {
		v, ok := r.Field(field)
		if !ok {
			return false
		}
		if normalize != nil {
			if normalize(field, v) != want {
				return false
			}
			continue
		}
		if normalizeKeyValue(record.CoerceString(v)) != normalizeKeyValue(want) {
			return false
		}
	}
	return true
}

func normalizeKeyValue(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

package adapter

import (
	"strings"
	"time"

	"github.com/agentstation/resolve/pkg/record"
)

// Operator is a comparison operator for filter conditions.
type Operator string

// Filter operators.
const (
	OpEq   Operator = "eq"
	OpNe   Operator = "ne"
	OpGt   Operator = "gt"
	OpGte  Operator = "gte"
	OpLt   Operator = "lt"
	OpLte  Operator = "lte"
	OpIn   Operator = "in"
	OpLike Operator = "like"
)

// Condition pairs an operator with its comparison value. A bare value in
// FilterCriteria is shorthand for Condition{Operator: OpEq}.
type Condition struct {
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// FilterCriteria maps field names to either a literal value (equality) or
// a Condition.
type FilterCriteria map[string]any

// SortDirection orders query results.
type SortDirection string

// Sort directions.
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// OrderBy names a sort field and direction.
type OrderBy struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// QueryOptions bound and order adapter reads.
type QueryOptions struct {
	Limit   int      `json:"limit,omitempty"`
	Offset  int      `json:"offset,omitempty"`
	OrderBy *OrderBy `json:"orderBy,omitempty"`
	Fields  []string `json:"fields,omitempty"`

	// KeyNormalizer folds a record field the way the blocking strategy
	// derives key values. FindByBlockingKeys needs it whenever the
	// strategy transforms values (soundex, metaphone, prefixes); without
	// it stores compare transformed keys against raw fields.
	KeyNormalizer func(field string, v any) string `json:"-" yaml:"-"`
}

// PriorityRange bounds queue-item priority, inclusive on both ends.
type PriorityRange struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// QueueFilter selects queue items.
type QueueFilter struct {
	Status   Status         `json:"status,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Since    *time.Time     `json:"since,omitempty"`
	Until    *time.Time     `json:"until,omitempty"`
	Priority *PriorityRange `json:"priority,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
	OrderBy  *OrderBy       `json:"orderBy,omitempty"`
}

// Matches evaluates the criteria against a record. Implementations backed
// by a real query engine translate criteria instead; the in-memory store
// and tests evaluate them directly.
func (fc FilterCriteria) Matches(r record.Record) bool {
	for field, raw := range fc {
		cond, ok := raw.(Condition)
		if !ok {
			cond = Condition{Operator: OpEq, Value: raw}
		}
		v, _ := r.Field(field)
		if !matchCondition(v, cond) {
			return false
		}
	}
	return true
}

func matchCondition(v any, cond Condition) bool {
	switch cond.Operator {
	case OpEq, "":
		return record.Equal(v, cond.Value)
	case OpNe:
		return !record.Equal(v, cond.Value)
	case OpGt, OpGte, OpLt, OpLte:
		return matchOrdered(v, cond)
	case OpIn:
		items, ok := record.CoerceArray(cond.Value)
		if !ok {
			return false
		}
		for _, item := range items {
			if record.Equal(v, item) {
				return true
			}
		}
		return false
	case OpLike:
		return likeMatch(record.CoerceString(v), record.CoerceString(cond.Value))
	}
	return false
}

func matchOrdered(v any, cond Condition) bool {
	// Times order chronologically, everything else numerically.
	if at, ok := record.CoerceTime(v); ok {
		bt, ok := record.CoerceTime(cond.Value)
		if !ok {
			return false
		}
		return orderedResult(cond.Operator, at.Compare(bt))
	}
	a, aOK := record.CoerceNumber(v)
	b, bOK := record.CoerceNumber(cond.Value)
	if !aOK || !bOK {
		return false
	}
	switch {
	case a < b:
		return orderedResult(cond.Operator, -1)
	case a > b:
		return orderedResult(cond.Operator, 1)
	}
	return orderedResult(cond.Operator, 0)
}

func orderedResult(op Operator, cmp int) bool {
	switch op {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

// likeMatch implements SQL LIKE with % (any run) and _ (any one char),
// case-insensitive.
func likeMatch(s, pattern string) bool {
	return likeRunes([]rune(strings.ToLower(s)), []rune(strings.ToLower(pattern)))
}

func likeRunes(s, p []rune) bool {
	for len(p) > 0 {
		switch p[0] {
		case '%':
			for i := 0; i <= len(s); i++ {
				if likeRunes(s[i:], p[1:]) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
			s, p = s[1:], p[1:]
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
			s, p = s[1:], p[1:]
		}
	}
	return len(s) == 0
}

package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/resolve/pkg/record"
)

func TestFilterCriteriaMatches(t *testing.T) {
	r := record.Record{
		"id":    "rec-1",
		"name":  "Alice Smith",
		"age":   34,
		"since": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name   string
		filter FilterCriteria
		want   bool
	}{
		{"empty filter matches everything", FilterCriteria{}, true},
		{"literal equality", FilterCriteria{"name": "Alice Smith"}, true},
		{"literal mismatch", FilterCriteria{"name": "Bob"}, false},
		{"explicit eq", FilterCriteria{"age": Condition{Operator: OpEq, Value: 34}}, true},
		{"ne", FilterCriteria{"age": Condition{Operator: OpNe, Value: 35}}, true},
		{"gt", FilterCriteria{"age": Condition{Operator: OpGt, Value: 30}}, true},
		{"gte boundary", FilterCriteria{"age": Condition{Operator: OpGte, Value: 34}}, true},
		{"lt fails", FilterCriteria{"age": Condition{Operator: OpLt, Value: 34}}, false},
		{"lte boundary", FilterCriteria{"age": Condition{Operator: OpLte, Value: 34}}, true},
		{"in", FilterCriteria{"name": Condition{Operator: OpIn, Value: []string{"Bob", "Alice Smith"}}}, true},
		{"in miss", FilterCriteria{"name": Condition{Operator: OpIn, Value: []string{"Bob"}}}, false},
		{"like prefix", FilterCriteria{"name": Condition{Operator: OpLike, Value: "alice%"}}, true},
		{"like infix", FilterCriteria{"name": Condition{Operator: OpLike, Value: "%smi%"}}, true},
		{"like underscore", FilterCriteria{"name": Condition{Operator: OpLike, Value: "Alice Smit_"}}, true},
		{"like miss", FilterCriteria{"name": Condition{Operator: OpLike, Value: "bob%"}}, false},
		{"time gt", FilterCriteria{"since": Condition{Operator: OpGt, Value: "2024-01-01"}}, true},
		{"time lt fails", FilterCriteria{"since": Condition{Operator: OpLt, Value: "2024-01-01"}}, false},
		{"missing field eq nil", FilterCriteria{"missing": Condition{Operator: OpEq, Value: nil}}, true},
		{"conjunction", FilterCriteria{"name": "Alice Smith", "age": Condition{Operator: OpGte, Value: 30}}, true},
		{"conjunction one fails", FilterCriteria{"name": "Alice Smith", "age": Condition{Operator: OpLt, Value: 30}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(r))
		})
	}
}

func TestQueueItemMatchesFilter(t *testing.T) {
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	earlier := created.Add(-time.Hour)
	later := created.Add(time.Hour)
	min, max := 1, 5

	item := &QueueItem{
		ID:        "q-1",
		Status:    StatusPending,
		CreatedAt: created,
		Priority:  3,
		Tags:      []string{"batch", "import"},
	}

	tests := []struct {
		name   string
		filter *QueueFilter
		want   bool
	}{
		{"nil filter", nil, true},
		{"status match", &QueueFilter{Status: StatusPending}, true},
		{"status mismatch", &QueueFilter{Status: StatusMerged}, false},
		{"tags subset", &QueueFilter{Tags: []string{"batch"}}, true},
		{"tag missing", &QueueFilter{Tags: []string{"batch", "manual"}}, false},
		{"since before creation", &QueueFilter{Since: &earlier}, true},
		{"since after creation", &QueueFilter{Since: &later}, false},
		{"until after creation", &QueueFilter{Until: &later}, true},
		{"priority in range", &QueueFilter{Priority: &PriorityRange{Min: &min, Max: &max}}, true},
		{"priority below min", &QueueFilter{Priority: &PriorityRange{Min: &max}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, item.MatchesFilter(tt.filter))
		})
	}
}

func TestQueueItemClone(t *testing.T) {
	now := time.Now().UTC()
	item := &QueueItem{
		ID:              "q-1",
		CandidateRecord: record.Record{"id": "rec-1", "name": "Alice"},
		PotentialMatches: []PotentialMatch{
			{Record: record.Record{"id": "rec-2"}, Score: 0.7},
		},
		Status:    StatusPending,
		CreatedAt: now,
		Context:   map[string]any{"source": "import"},
		Tags:      []string{"batch"},
	}

	clone := item.Clone()
	clone.CandidateRecord["name"] = "Mallory"
	clone.PotentialMatches[0].Record["id"] = "rec-999"
	clone.Context["source"] = "manual"
	clone.Tags[0] = "changed"

	assert.Equal(t, "Alice", item.CandidateRecord["name"])
	assert.Equal(t, "rec-2", item.PotentialMatches[0].Record["id"])
	assert.Equal(t, "import", item.Context["source"])
	assert.Equal(t, []string{"batch"}, item.Tags)
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusReviewing, StatusConfirmed, StatusRejected, StatusMerged} {
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("archived").Valid())
}

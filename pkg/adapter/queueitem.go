package adapter

import (
	"time"

	"github.com/agentstation/resolve/pkg/record"
	"github.com/agentstation/resolve/pkg/scoring"
)

// Status is the lifecycle state of a queue item.
type Status string

// Queue item statuses.
const (
	StatusPending   Status = "pending"
	StatusReviewing Status = "reviewing"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusMerged    Status = "merged"
)

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReviewing, StatusConfirmed, StatusRejected, StatusMerged:
		return true
	}
	return false
}

// PotentialMatch is one scored candidate pair inside a queue item.
type PotentialMatch struct {
	Record      record.Record   `json:"record"`
	Score       float64         `json:"score"`
	Outcome     scoring.Outcome `json:"outcome"`
	Explanation string          `json:"explanation,omitempty"`
}

// Decision records a reviewer's resolution of a queue item.
type Decision struct {
	Action          string `json:"action"`
	MatchedRecordID string `json:"matchedRecordId,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// QueueItem is the persisted shape of a review-queue entry. CandidateRecord,
// PotentialMatches, Decision, and Context serialize as JSON text in stores
// that lack native document columns.
type QueueItem struct {
	ID               string           `json:"id"`
	CandidateRecord  record.Record    `json:"candidateRecord"`
	PotentialMatches []PotentialMatch `json:"potentialMatches"`
	Status           Status           `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	DecidedAt        *time.Time       `json:"decidedAt,omitempty"`
	DecidedBy        string           `json:"decidedBy,omitempty"`
	Decision         *Decision        `json:"decision,omitempty"`
	Context          map[string]any   `json:"context,omitempty"`
	Priority         int              `json:"priority"`
	Tags             []string         `json:"tags"`
}

// Match returns the potential match for the given record id.
func (q *QueueItem) Match(recordID string) (*PotentialMatch, bool) {
	for i := range q.PotentialMatches {
		if q.PotentialMatches[i].Record.ID() == recordID {
			return &q.PotentialMatches[i], true
		}
	}
	return nil, false
}

// Clone deep-copies the item so stores can hand out isolated values.
func (q *QueueItem) Clone() *QueueItem {
	out := *q
	out.CandidateRecord = q.CandidateRecord.Clone()
	if q.PotentialMatches != nil {
		out.PotentialMatches = make([]PotentialMatch, len(q.PotentialMatches))
		for i, pm := range q.PotentialMatches {
			pm.Record = pm.Record.Clone()
			out.PotentialMatches[i] = pm
		}
	}
	if q.DecidedAt != nil {
		at := *q.DecidedAt
		out.DecidedAt = &at
	}
	if q.Decision != nil {
		d := *q.Decision
		out.Decision = &d
	}
	if q.Context != nil {
		out.Context = make(map[string]any, len(q.Context))
		for k, v := range q.Context {
			out.Context[k] = v
		}
	}
	if q.Tags != nil {
		out.Tags = append([]string(nil), q.Tags...)
	}
	return &out
}

// MatchesFilter evaluates a QueueFilter against the item. Store
// implementations with real query engines translate the filter instead.
func (q *QueueItem) MatchesFilter(f *QueueFilter) bool {
	if f == nil {
		return true
	}
	if f.Status != "" && q.Status != f.Status {
		return false
	}
	for _, tag := range f.Tags {
		if !hasTag(q.Tags, tag) {
			return false
		}
	}
	if f.Since != nil && q.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && q.CreatedAt.After(*f.Until) {
		return false
	}
	if f.Priority != nil {
		if f.Priority.Min != nil && q.Priority < *f.Priority.Min {
			return false
		}
		if f.Priority.Max != nil && q.Priority > *f.Priority.Max {
			return false
		}
	}
	return true
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Package queue manages the review queue for ambiguous match pairs. Items
// move pending → reviewing → {confirmed, rejected}; a merge decision on a
// mergeable item retires it to merged, reversible only through Unmerge.
//
// Merge decisions are "at-least-committed": once the golden record and its
// provenance are persisted the merge stands, even if the trailing queue
// bookkeeping update fails. Callers needing strict cross-store atomicity
// wrap the decision in their adapter's transaction facility.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/logging"
	"github.com/agentstation/resolve/pkg/merge"
	"github.com/agentstation/resolve/pkg/record"
)

// Queue is the review-queue façade bound to external adapters.
type Queue struct {
	adapters    adapter.Adapters
	mergeConfig merge.Config
	logger      *zerolog.Logger
	now         func() time.Time
	newID       func() string
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger injects a logger. Defaults to the Nop logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithMergeConfig sets the merge configuration applied on confirmation.
func WithMergeConfig(config merge.Config) Option {
	return func(q *Queue) {
		q.mergeConfig = config
	}
}

// WithClock injects the timestamp source, for reproducible tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithIDGenerator injects the queue-item id generator.
func WithIDGenerator(newID func() string) Option {
	return func(q *Queue) {
		if newID != nil {
			q.newID = newID
		}
	}
}

// New creates a review queue. A queue adapter is required; merge,
// provenance, and database adapters enable the decision and unmerge flows.
func New(adapters adapter.Adapters, opts ...Option) (*Queue, error) {
	if adapters.Queue == nil {
		return nil, errors.NewQueueError("a queue adapter is required", errors.ErrNoQueueAdapter)
	}
	q := &Queue{
		adapters: adapters,
		logger:   &logging.Nop,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// AddOptions annotate a queued pair.
type AddOptions struct {
	Context  map[string]any
	Priority int
	Tags     []string
}

// Add enqueues a candidate with its scored potential matches as a pending
// item.
func (q *Queue) Add(ctx context.Context, candidate record.Record, matches []adapter.PotentialMatch, opts *AddOptions) (*adapter.QueueItem, error) {
	if candidate.ID() == "" {
		return nil, errors.NewValidationError("candidateRecord", nil, "candidate record lacks a stable id")
	}
	if len(matches) == 0 {
		return nil, errors.NewValidationError("potentialMatches", nil, "at least one potential match is required")
	}
	if opts == nil {
		opts = &AddOptions{}
	}

	now := q.now().UTC()
	item := &adapter.QueueItem{
		ID:               q.newID(),
		CandidateRecord:  candidate.Clone(),
		PotentialMatches: matches,
		Status:           adapter.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
		Context:          opts.Context,
		Priority:         opts.Priority,
		Tags:             opts.Tags,
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if err := q.adapters.Queue.InsertQueueItem(ctx, item); err != nil {
		return nil, err
	}
	q.logger.Debug().
		Str("queue_item_id", item.ID).
		Str("candidate_id", candidate.ID()).
		Int("potential_matches", len(matches)).
		Msg("queued pair for review")
	return item, nil
}

// Get returns the queue item by id.
func (q *Queue) Get(ctx context.Context, id string) (*adapter.QueueItem, error) {
	return q.adapters.Queue.FindQueueItemByID(ctx, id)
}

// List returns queue items matching the filter.
func (q *Queue) List(ctx context.Context, filter *adapter.QueueFilter) ([]*adapter.QueueItem, error) {
	return q.adapters.Queue.FindQueueItems(ctx, filter)
}

// Count returns the number of queue items matching the filter.
func (q *Queue) Count(ctx context.Context, filter *adapter.QueueFilter) (int, error) {
	return q.adapters.Queue.CountQueueItems(ctx, filter)
}

// Delete removes a queue item.
func (q *Queue) Delete(ctx context.Context, id string) error {
	return q.adapters.Queue.DeleteQueueItem(ctx, id)
}

// Review moves a pending item to reviewing.
func (q *Queue) Review(ctx context.Context, id, reviewer string) (*adapter.QueueItem, error) {
	return q.transition(ctx, id, adapter.StatusReviewing, reviewer, nil)
}

// Reject closes an item without merging.
func (q *Queue) Reject(ctx context.Context, id, decidedBy, notes string) (*adapter.QueueItem, error) {
	return q.transition(ctx, id, adapter.StatusRejected, decidedBy, &adapter.Decision{
		Action: "reject",
		Notes:  notes,
	})
}

// Confirm marks an item's match as confirmed without merging yet.
func (q *Queue) Confirm(ctx context.Context, id, decidedBy, matchedRecordID string) (*adapter.QueueItem, error) {
	item, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := item.Match(matchedRecordID); !ok {
		return nil, errors.NewValidationError("matchedRecordId", matchedRecordID, "not among the item's potential matches")
	}
	return q.transition(ctx, id, adapter.StatusConfirmed, decidedBy, &adapter.Decision{
		Action:          "confirm",
		MatchedRecordID: matchedRecordID,
	})
}

// validTransitions maps a target status to the statuses it may come from.
var validTransitions = map[adapter.Status][]adapter.Status{
	adapter.StatusReviewing: {adapter.StatusPending},
	adapter.StatusConfirmed: {adapter.StatusPending, adapter.StatusReviewing},
	adapter.StatusRejected:  {adapter.StatusPending, adapter.StatusReviewing},
	adapter.StatusMerged:    {adapter.StatusPending, adapter.StatusReviewing, adapter.StatusConfirmed},
}

func (q *Queue) transition(ctx context.Context, id string, target adapter.Status, decidedBy string, decision *adapter.Decision) (*adapter.QueueItem, error) {
	item, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, from := range validTransitions[target] {
		if item.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, errors.NewValidationError("status", item.Status,
			fmt.Sprintf("cannot transition from %s to %s", item.Status, target))
	}

	now := q.now().UTC()
	fields := map[string]any{
		"status":    target,
		"updatedAt": now,
	}
	if decision != nil {
		fields["decision"] = decision
		fields["decidedAt"] = now
		fields["decidedBy"] = decidedBy
	}
	if err := q.adapters.Queue.UpdateQueueItem(ctx, id, fields); err != nil {
		return nil, err
	}
	return q.Get(ctx, id)
}

// Stats counts queue items per status.
type Stats struct {
	Pending   int `json:"pending"`
	Reviewing int `json:"reviewing"`
	Confirmed int `json:"confirmed"`
	Rejected  int `json:"rejected"`
	Merged    int `json:"merged"`
	Total     int `json:"total"`
}

// Stats returns per-status counts.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	for _, s := range []struct {
		status adapter.Status
		dest   *int
	}{
		{adapter.StatusPending, &stats.Pending},
		{adapter.StatusReviewing, &stats.Reviewing},
		{adapter.StatusConfirmed, &stats.Confirmed},
		{adapter.StatusRejected, &stats.Rejected},
		{adapter.StatusMerged, &stats.Merged},
	} {
		n, err := q.adapters.Queue.CountQueueItems(ctx, &adapter.QueueFilter{Status: s.status})
		if err != nil {
			return nil, err
		}
		*s.dest = n
		stats.Total += n
	}
	return stats, nil
}

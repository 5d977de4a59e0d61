package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/resolve/internal/memstore"
	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/merge"
	"github.com/agentstation/resolve/pkg/record"
	"github.com/agentstation/resolve/pkg/scoring"
)

func testClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestQueue(t *testing.T) (*Queue, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	q, err := New(store.Adapters(),
		WithClock(testClock),
		WithMergeConfig(merge.Config{
			FieldStrategies: map[string]merge.FieldStrategy{
				"firstName": {Strategy: merge.PreferLonger},
				"lastName":  {Strategy: merge.PreferLonger},
				"email":     {Strategy: merge.PreferFirst},
				"phone":     {Strategy: merge.PreferNonNull},
			},
			GoldenRecordID: "golden-1",
		}),
	)
	require.NoError(t, err)
	return q, store
}

func seedPair(t *testing.T, q *Queue, store *memstore.Store) *adapter.QueueItem {
	t.Helper()
	ctx := context.Background()

	candidate := record.Record{"id": "rec-001", "firstName": "John", "lastName": "Smith", "email": "john@example.com"}
	existing := record.Record{"id": "rec-002", "firstName": "Jonathan", "lastName": "Smith", "email": "johnny@example.com", "phone": "555-1234"}
	require.NoError(t, store.Insert(ctx, candidate))
	require.NoError(t, store.Insert(ctx, existing))

	item, err := q.Add(ctx, candidate, []adapter.PotentialMatch{
		{Record: existing, Score: 0.72, Outcome: scoring.OutcomePotential},
	}, &AddOptions{Tags: []string{"batch"}, Priority: 1})
	require.NoError(t, err)
	return item
}

func TestNewRequiresQueueAdapter(t *testing.T) {
	_, err := New(adapter.Adapters{})
	assert.True(t, errors.IsQueueError(err))
}

func TestAddValidation(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Add(ctx, record.Record{"name": "no id"}, []adapter.PotentialMatch{{}}, nil)
	assert.True(t, errors.IsValidationError(err))

	_, err = q.Add(ctx, record.Record{"id": "rec-1"}, nil, nil)
	assert.True(t, errors.IsValidationError(err))
}

func TestAddCreatesPendingItem(t *testing.T) {
	q, store := newTestQueue(t)
	item := seedPair(t, q, store)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, adapter.StatusPending, item.Status)
	assert.Equal(t, testClock(), item.CreatedAt)
	assert.Equal(t, []string{"batch"}, item.Tags)
	assert.Equal(t, 1, item.Priority)
}

func TestCanMerge(t *testing.T) {
	q, store := newTestQueue(t)
	item := seedPair(t, q, store)

	assert.True(t, q.CanMerge(item, "rec-002").CanMerge)

	e := q.CanMerge(item, "rec-999")
	assert.False(t, e.CanMerge)
	assert.Contains(t, e.Reason, "rec-999")

	e = q.CanMerge(nil, "rec-002")
	assert.False(t, e.CanMerge)

	noID := item.Clone()
	delete(noID.CandidateRecord, "id")
	assert.False(t, q.CanMerge(noID, "rec-002").CanMerge)
}

func TestCanMergeStatuses(t *testing.T) {
	q, store := newTestQueue(t)
	item := seedPair(t, q, store)

	for _, status := range []adapter.Status{adapter.StatusPending, adapter.StatusReviewing} {
		open := item.Clone()
		open.Status = status
		assert.True(t, q.CanMerge(open, "rec-002").CanMerge)
	}

	// Anything already decided is refused, with the reason naming the
	// item's current status.
	for _, status := range []adapter.Status{adapter.StatusConfirmed, adapter.StatusRejected, adapter.StatusMerged} {
		decided := item.Clone()
		decided.Status = status
		e := q.CanMerge(decided, "rec-002")
		assert.False(t, e.CanMerge)
		assert.Contains(t, e.Reason, string(status))
	}
}

func TestTransitions(t *testing.T) {
	q, store := newTestQueue(t)
	item := seedPair(t, q, store)
	ctx := context.Background()

	reviewed, err := q.Review(ctx, item.ID, "alex")
	require.NoError(t, err)
	assert.Equal(t, adapter.StatusReviewing, reviewed.Status)

	// Reviewing again is not a valid transition.
	_, err = q.Review(ctx, item.ID, "alex")
	assert.True(t, errors.IsValidationError(err))

	rejected, err := q.Reject(ctx, item.ID, "alex", "different people")
	require.NoError(t, err)
	assert.Equal(t, adapter.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.Decision)
	assert.Equal(t, "reject", rejected.Decision.Action)
	assert.Equal(t, "alex", rejected.DecidedBy)
	require.NotNil(t, rejected.DecidedAt)

	// Rejected is terminal.
	_, err = q.Reject(ctx, item.ID, "alex", "again")
	assert.True(t, errors.IsValidationError(err))
}

func TestConfirmValidatesMatch(t *testing.T) {
	q, store := newTestQueue(t)
	item := seedPair(t, q, store)
	ctx := context.Background()

	_, err := q.Confirm(ctx, item.ID, "alex", "rec-999")
	assert.True(t, errors.IsValidationError(err))

	confirmed, err := q.Confirm(ctx, item.ID, "alex", "rec-002")
	require.NoError(t, err)
	assert.Equal(t, adapter.StatusConfirmed, confirmed.Status)
	assert.Equal(t, "rec-002", confirmed.Decision.MatchedRecordID)
}

func TestHandleMergeDecision(t *testing.T) {
	q, store := newTestQueue(t)
	item := seedPair(t, q, store)
	ctx := context.Background()

	result, err := q.HandleMergeDecision(ctx, item.ID, &MergeDecision{
		SelectedMatchID: "rec-002",
		DecidedBy:       "alex",
	})
	require.NoError(t, err)
	assert.True(t, result.QueueItemUpdated)

	golden := result.Merge.GoldenRecord
	assert.Equal(t, "Jonathan", golden["firstName"])
	assert.Equal(t, "Smith", golden["lastName"])
	assert.Equal(t, "john@example.com", golden["email"])
	assert.Equal(t, "555-1234", golden["phone"])

	prov := result.Merge.Provenance
	assert.Equal(t, []string{"rec-001", "rec-002"}, prov.SourceRecordIDs)
	assert.Equal(t, item.ID, prov.QueueItemID)
	assert.Equal(t, "alex", prov.MergedBy)

	// Golden record persisted, sources archived, provenance saved.
	active, err := store.FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "golden-1", active[0].ID())

	flags, err := store.IsArchived(ctx, []string{"rec-001", "rec-002"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"rec-001": true, "rec-002": true}, flags)

	exists, err := store.Adapters().Provenance.ProvenanceExists(ctx, "golden-1")
	require.NoError(t, err)
	assert.True(t, exists)

	updated, err := q.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, adapter.StatusMerged, updated.Status)
	assert.Equal(t, "merge", updated.Decision.Action)

	// Merged is terminal: a second decision is rejected.
	_, err = q.HandleMergeDecision(ctx, item.ID, &MergeDecision{SelectedMatchID: "rec-002"})
	assert.True(t, errors.IsValidationError(err))
}

func TestHandleMergeDecisionValidation(t *testing.T) {
	q, store := newTestQueue(t)
	item := seedPair(t, q, store)
	ctx := context.Background()

	_, err := q.HandleMergeDecision(ctx, item.ID, nil)
	assert.True(t, errors.IsValidationError(err))

	_, err = q.HandleMergeDecision(ctx, item.ID, &MergeDecision{SelectedMatchID: "rec-999"})
	assert.True(t, errors.IsValidationError(err))

	_, err = q.HandleMergeDecision(ctx, "missing", &MergeDecision{SelectedMatchID: "rec-002"})
	assert.True(t, errors.IsNotFound(err))
}

func TestHandleMergeDecisionFromConfirmed(t *testing.T) {
	q, store := newTestQueue(t)
	item := seedPair(t, q, store)
	ctx := context.Background()

	// Review then confirm, then commit the decision: confirming is a
	// reviewer saying yes, so the confirmed item is still mergeable.
	_, err := q.Review(ctx, item.ID, "alex")
	require.NoError(t, err)
	_, err = q.Confirm(ctx, item.ID, "alex", "rec-002")
	require.NoError(t, err)

	result, err := q.HandleMergeDecision(ctx, item.ID, &MergeDecision{
		SelectedMatchID: "rec-002",
		DecidedBy:       "alex",
	})
	require.NoError(t, err)
	assert.True(t, result.QueueItemUpdated)

	updated, err := q.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, adapter.StatusMerged, updated.Status)
}

func TestHandleMergeDecisionDefaultGoldenID(t *testing.T) {
	store := memstore.New()
	q, err := New(store.Adapters(), WithClock(testClock))
	require.NoError(t, err)
	item := seedPair(t, q, store)
	ctx := context.Background()

	// Without a configured golden id the golden record reuses the
	// candidate's id, superseding that row in the active table.
	result, err := q.HandleMergeDecision(ctx, item.ID, &MergeDecision{
		SelectedMatchID: "rec-002",
		DecidedBy:       "alex",
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-001", result.Merge.GoldenRecordID)
	assert.Contains(t, result.Merge.Provenance.SourceRecordIDs, "rec-001")

	active, err := store.FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "rec-001", active[0].ID())

	// Unmerge clears the golden row before restoring, so the restored
	// source takes the id back.
	unmerged, err := q.Unmerge(ctx, "rec-001", &UnmergeOptions{UnmergedBy: "casey"})
	require.NoError(t, err)
	assert.Len(t, unmerged.RestoredRecords, 2)

	active, err = store.FindAll(ctx, nil)
	require.NoError(t, err)
	ids := make([]string, len(active))
	for i, r := range active {
		ids[i] = r.ID()
	}
	assert.ElementsMatch(t, []string{"rec-001", "rec-002"}, ids)
}

// failingUpdateQueue delegates to a real queue adapter but refuses the
// bookkeeping update after a merge commits.
type failingUpdateQueue struct {
	adapter.QueueAdapter
}

func (f *failingUpdateQueue) UpdateQueueItem(context.Context, string, map[string]any) error {
	return fmt.Errorf("queue table unavailable")
}

func TestHandleMergeDecisionQueueUpdateFails(t *testing.T) {
	store := memstore.New()
	adapters := store.Adapters()
	adapters.Queue = &failingUpdateQueue{QueueAdapter: adapters.Queue}

	q, err := New(adapters,
		WithClock(testClock),
		WithMergeConfig(merge.Config{GoldenRecordID: "golden-1"}),
	)
	require.NoError(t, err)
	item := seedPair(t, q, store)
	ctx := context.Background()

	// The merge persists even though the item cannot be retired: golden
	// record inserted, sources archived, provenance saved, and the result
	// reports the stale queue item.
	result, err := q.HandleMergeDecision(ctx, item.ID, &MergeDecision{
		SelectedMatchID: "rec-002",
		DecidedBy:       "alex",
	})
	require.NoError(t, err)
	assert.False(t, result.QueueItemUpdated)

	active, err := store.FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "golden-1", active[0].ID())

	flags, err := store.IsArchived(ctx, []string{"rec-001", "rec-002"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"rec-001": true, "rec-002": true}, flags)

	exists, err := store.Adapters().Provenance.ProvenanceExists(ctx, "golden-1")
	require.NoError(t, err)
	assert.True(t, exists)

	stale, err := q.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, adapter.StatusPending, stale.Status)
}

func TestUnmergeRoundTrip(t *testing.T) {
	q, store := newTestQueue(t)
	item := seedPair(t, q, store)
	ctx := context.Background()

	_, err := q.HandleMergeDecision(ctx, item.ID, &MergeDecision{
		SelectedMatchID: "rec-002",
		DecidedBy:       "alex",
	})
	require.NoError(t, err)

	result, err := q.Unmerge(ctx, "golden-1", &UnmergeOptions{
		UnmergedBy:         "casey",
		Reason:             "wrong match",
		DeleteGoldenRecord: true,
	})
	require.NoError(t, err)
	assert.Len(t, result.RestoredRecords, 2)
	assert.True(t, result.Provenance.Unmerged)

	// Sources are active again, golden record gone, provenance kept.
	active, err := store.FindAll(ctx, nil)
	require.NoError(t, err)
	ids := make([]string, len(active))
	for i, r := range active {
		ids[i] = r.ID()
	}
	assert.ElementsMatch(t, []string{"rec-001", "rec-002"}, ids)

	exists, err := store.Adapters().Provenance.ProvenanceExists(ctx, "golden-1")
	require.NoError(t, err)
	assert.True(t, exists)

	// A second unmerge is rejected.
	_, err = q.Unmerge(ctx, "golden-1", nil)
	assert.True(t, errors.IsValidationError(err))
}

func TestUnmergeUnknownGoldenRecord(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Unmerge(context.Background(), "missing", nil)
	assert.True(t, errors.IsNotFound(err))
}

func TestStats(t *testing.T) {
	q, store := newTestQueue(t)
	item := seedPair(t, q, store)
	ctx := context.Background()

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Total)

	_, err = q.HandleMergeDecision(ctx, item.ID, &MergeDecision{SelectedMatchID: "rec-002"})
	require.NoError(t, err)

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, 1, stats.Total)
}

func TestListAndCount(t *testing.T) {
	q, store := newTestQueue(t)
	seedPair(t, q, store)
	ctx := context.Background()

	items, err := q.List(ctx, &adapter.QueueFilter{Status: adapter.StatusPending})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	n, err := q.Count(ctx, &adapter.QueueFilter{Tags: []string{"batch"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

package queue

import (
	"context"
	"fmt"

	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/merge"
	"github.com/agentstation/resolve/pkg/provenance"
	"github.com/agentstation/resolve/pkg/record"
)

// Eligibility is the non-throwing result of a CanMerge check.
type Eligibility struct {
	CanMerge bool   `json:"canMerge"`
	Reason   string `json:"reason,omitempty"`
}

// MergeDecision is a reviewer's instruction to merge a queue item's
// candidate with one of its potential matches.
type MergeDecision struct {
	SelectedMatchID string `json:"selectedMatchId"`
	DecidedBy       string `json:"decidedBy,omitempty"`
	Notes           string `json:"notes,omitempty"`

	// MergeConfig overrides the queue's default merge configuration for
	// this decision only.
	MergeConfig *merge.Config `json:"mergeConfig,omitempty"`
}

// DecisionResult reports a committed merge decision. QueueItemUpdated is
// false when the trailing queue bookkeeping update failed; the merge
// itself still stands.
type DecisionResult struct {
	Merge            *merge.Result `json:"merge"`
	QueueItemUpdated bool          `json:"queueItemUpdated"`
}

// CanMerge reports whether the item can be merged against the selected
// match. It never returns an error: ineligibility comes back as a reason.
// Only pending and reviewing items are eligible; the returned reason
// names the item's current status otherwise.
func (q *Queue) CanMerge(item *adapter.QueueItem, selectedMatchID string) Eligibility {
	return mergeEligibility(item, selectedMatchID, adapter.StatusPending, adapter.StatusReviewing)
}

func mergeEligibility(item *adapter.QueueItem, selectedMatchID string, allowed ...adapter.Status) Eligibility {
	if item == nil {
		return Eligibility{Reason: "queue item is nil"}
	}
	eligible := false
	for _, status := range allowed {
		if item.Status == status {
			eligible = true
			break
		}
	}
	if !eligible {
		return Eligibility{Reason: fmt.Sprintf("queue item status is %s", item.Status)}
	}
	if item.CandidateRecord.ID() == "" {
		return Eligibility{Reason: "candidate record lacks a stable id"}
	}
	match, ok := item.Match(selectedMatchID)
	if !ok {
		return Eligibility{Reason: fmt.Sprintf("record %s is not among the item's potential matches", selectedMatchID)}
	}
	if match.Record.ID() == "" {
		return Eligibility{Reason: "matched record lacks a stable id"}
	}
	return Eligibility{CanMerge: true}
}

// HandleMergeDecision merges a queue item's candidate with the selected
// match. On success the golden record and provenance are persisted, the
// source records archived, and the item retired to merged. The final
// status update is best effort: its failure is logged and reflected in
// QueueItemUpdated without undoing the merge.
func (q *Queue) HandleMergeDecision(ctx context.Context, itemID string, decision *MergeDecision) (*DecisionResult, error) {
	if decision == nil || decision.SelectedMatchID == "" {
		return nil, errors.NewValidationError("selectedMatchId", nil, "a selected match id is required")
	}

	item, err := q.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	// Confirmed items are also mergeable here: confirming is a reviewer
	// saying yes, and the decision that follows commits it.
	eligibility := mergeEligibility(item, decision.SelectedMatchID,
		adapter.StatusPending, adapter.StatusReviewing, adapter.StatusConfirmed)
	if !eligibility.CanMerge {
		return nil, errors.NewValidationError("queueItem", itemID, eligibility.Reason)
	}
	match, _ := item.Match(decision.SelectedMatchID)

	now := q.now().UTC()
	sources := []record.SourceRecord{
		record.NewSourceRecord(item.CandidateRecord, now),
		record.NewSourceRecord(match.Record, now),
	}

	config := q.mergeConfig
	if decision.MergeConfig != nil {
		config = *decision.MergeConfig
	}
	config.TrackProvenance = true
	config.QueueItemID = item.ID
	if decision.DecidedBy != "" {
		config.MergedBy = decision.DecidedBy
	}

	executor, err := merge.NewExecutor(config, merge.WithLogger(q.logger), merge.WithClock(q.now))
	if err != nil {
		return nil, err
	}
	result, err := executor.Merge(sources)
	if err != nil {
		return nil, err
	}

	// Archive before inserting the golden record: when no golden id is
	// configured the golden record reuses the first source's id, so that
	// source row must leave the active table first.
	if q.adapters.Merge != nil {
		ids := []string{sources[0].ID, sources[1].ID}
		if err := q.adapters.Merge.Archive(ctx, ids, &adapter.ArchiveOptions{
			Reason:       "merged",
			MergedIntoID: result.GoldenRecordID,
		}); err != nil {
			return nil, errors.WrapQuery("archive", "source records", err)
		}
	}
	if q.adapters.Database != nil {
		if err := q.adapters.Database.Insert(ctx, result.GoldenRecord); err != nil {
			return nil, errors.WrapQuery("insert", "golden record", err)
		}
	}
	if q.adapters.Provenance != nil {
		if err := q.adapters.Provenance.SaveProvenance(ctx, result.Provenance); err != nil {
			return nil, errors.WrapQuery("save", "provenance", err)
		}
	}

	// The merge is committed; the status update is advisory bookkeeping.
	outcome := &DecisionResult{Merge: result, QueueItemUpdated: true}
	_, err = q.transition(ctx, item.ID, adapter.StatusMerged, decision.DecidedBy, &adapter.Decision{
		Action:          "merge",
		MatchedRecordID: decision.SelectedMatchID,
		Notes:           decision.Notes,
	})
	if err != nil {
		outcome.QueueItemUpdated = false
		q.logger.Warn().
			Err(err).
			Str("queue_item_id", item.ID).
			Str("golden_record_id", result.GoldenRecordID).
			Msg("merge committed but queue item update failed")
	} else {
		q.logger.Info().
			Str("queue_item_id", item.ID).
			Str("golden_record_id", result.GoldenRecordID).
			Msg("merge decision committed")
	}
	return outcome, nil
}

// UnmergeOptions annotate an unmerge.
type UnmergeOptions struct {
	UnmergedBy         string
	Reason             string
	DeleteGoldenRecord bool
}

// UnmergeResult reports the restored state.
type UnmergeResult struct {
	GoldenRecordID  string                 `json:"goldenRecordId"`
	RestoredRecords []record.Record        `json:"restoredRecords"`
	Provenance      *provenance.Provenance `json:"provenance"`
}

// Unmerge reverses a committed merge: archived source records return to
// active state and the provenance row is marked unmerged. The provenance
// row itself is permanent audit state and is never deleted here.
func (q *Queue) Unmerge(ctx context.Context, goldenRecordID string, opts *UnmergeOptions) (*UnmergeResult, error) {
	if q.adapters.Provenance == nil {
		return nil, errors.NewQueueError("unmerge requires a provenance adapter", errors.ErrNoQueueAdapter)
	}
	if q.adapters.Merge == nil {
		return nil, errors.NewQueueError("unmerge requires a merge adapter", errors.ErrNoQueueAdapter)
	}
	if opts == nil {
		opts = &UnmergeOptions{}
	}

	prov, err := q.adapters.Provenance.GetProvenance(ctx, goldenRecordID)
	if err != nil {
		return nil, err
	}
	if prov.Unmerged {
		return nil, errors.NewValidationError("goldenRecordId", goldenRecordID, "already unmerged")
	}

	// The golden record goes first. When it reused a source id the active
	// row must be gone before Restore brings that source back; a golden
	// record that was never persisted is not an error.
	if q.adapters.Database != nil {
		deleteGolden := opts.DeleteGoldenRecord
		for _, id := range prov.SourceRecordIDs {
			if id == goldenRecordID {
				deleteGolden = true
				break
			}
		}
		if deleteGolden {
			if err := q.adapters.Database.Delete(ctx, goldenRecordID); err != nil && !errors.IsNotFound(err) {
				return nil, errors.WrapQuery("delete", "golden record", err)
			}
		}
	}

	restored, err := q.adapters.Merge.Restore(ctx, prov.SourceRecordIDs)
	if err != nil {
		return nil, errors.WrapQuery("restore", "archived records", err)
	}

	if err := q.adapters.Provenance.MarkUnmerged(ctx, goldenRecordID, opts.UnmergedBy, opts.Reason); err != nil {
		return nil, errors.WrapQuery("update", "provenance", err)
	}
	prov.MarkUnmerged(q.now().UTC(), opts.UnmergedBy, opts.Reason)

	q.logger.Info().
		Str("golden_record_id", goldenRecordID).
		Int("restored", len(restored)).
		Msg("unmerged golden record")

	return &UnmergeResult{
		GoldenRecordID:  goldenRecordID,
		RestoredRecords: restored,
		Provenance:      prov,
	}, nil
}

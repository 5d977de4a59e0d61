// Package adapter defines the persistence interfaces the engine consumes.
// The engine never owns storage: callers supply implementations (or use the
// bundled memory/sqlite stores) and the engine calls through these
// interfaces at its suspension points. All methods take a context and
// return wrapped errors from pkg/errors.
package adapter

import (
	"context"

	"github.com/agentstation/resolve/pkg/provenance"
	"github.com/agentstation/resolve/pkg/record"
)

// DatabaseAdapter provides record storage and retrieval.
type DatabaseAdapter interface {
	// FindByBlockingKeys returns records matching all of the given
	// field/value pairs, typically backed by an index per blocking field.
	FindByBlockingKeys(ctx context.Context, keys map[string]string, opts *QueryOptions) ([]record.Record, error)

	FindByIDs(ctx context.Context, ids []string) ([]record.Record, error)
	FindAll(ctx context.Context, opts *QueryOptions) ([]record.Record, error)
	Count(ctx context.Context, filter FilterCriteria) (int, error)

	Insert(ctx context.Context, r record.Record) error
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error

	BatchInsert(ctx context.Context, records []record.Record) error
	BatchUpdate(ctx context.Context, updates map[string]map[string]any) error

	// Transaction runs fn against a transactional view of the adapter.
	// An error from fn rolls the transaction back.
	Transaction(ctx context.Context, fn func(tx DatabaseAdapter) error) error
}

// QueueAdapter persists review-queue items.
type QueueAdapter interface {
	InsertQueueItem(ctx context.Context, item *QueueItem) error
	UpdateQueueItem(ctx context.Context, id string, fields map[string]any) error
	FindQueueItems(ctx context.Context, filter *QueueFilter) ([]*QueueItem, error)
	FindQueueItemByID(ctx context.Context, id string) (*QueueItem, error)
	DeleteQueueItem(ctx context.Context, id string) error
	CountQueueItems(ctx context.Context, filter *QueueFilter) (int, error)
	BatchInsertQueueItems(ctx context.Context, items []*QueueItem) error
}

// ArchiveOptions annotate an archival.
type ArchiveOptions struct {
	Reason       string `json:"reason,omitempty"`
	MergedIntoID string `json:"mergedIntoId,omitempty"`
}

// MergeAdapter archives source records at merge time and restores them on
// unmerge. Archived records keep their pre-archive field values.
type MergeAdapter interface {
	Archive(ctx context.Context, ids []string, opts *ArchiveOptions) error
	Restore(ctx context.Context, ids []string) ([]record.Record, error)
	GetArchived(ctx context.Context, ids []string) ([]record.Record, error)
	IsArchived(ctx context.Context, ids []string) (map[string]bool, error)
	GetArchivedByGoldenRecord(ctx context.Context, goldenRecordID string) ([]record.Record, error)
	PermanentlyDeleteArchived(ctx context.Context, ids []string) error
	CountArchived(ctx context.Context) (int, error)
}

// ProvenanceAdapter persists merge provenance. Provenance rows are audit
// state: unmerge marks them, it never deletes them.
type ProvenanceAdapter interface {
	SaveProvenance(ctx context.Context, p *provenance.Provenance) error
	GetProvenance(ctx context.Context, goldenRecordID string) (*provenance.Provenance, error)
	GetProvenanceBySourceID(ctx context.Context, sourceRecordID string) ([]*provenance.Provenance, error)
	MarkUnmerged(ctx context.Context, goldenRecordID, unmergedBy, reason string) error
	DeleteProvenance(ctx context.Context, goldenRecordID string) error
	ProvenanceExists(ctx context.Context, goldenRecordID string) (bool, error)
	CountProvenance(ctx context.Context) (int, error)
}

// Adapters bundles the four interfaces. Queue, Merge, and Provenance are
// optional; components fail with typed errors when a needed one is absent.
type Adapters struct {
	Database   DatabaseAdapter
	Queue      QueueAdapter
	Merge      MergeAdapter
	Provenance ProvenanceAdapter
}

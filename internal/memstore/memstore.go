// Package memstore provides in-memory implementations of the persistence
// adapters. It backs the CLI's default mode and the engine's tests; data
// does not survive the process.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/record"
)

// Store implements all four persistence adapters over process memory.
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	records  map[string]record.Record
	order    []string // insertion order of active record ids
	archived map[string]*archivedRecord
	queue    *queueStore
	prov     *provenanceStore
}

type archivedRecord struct {
	record       record.Record
	reason       string
	mergedIntoID string
	archivedAt   time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records:  make(map[string]record.Record),
		archived: make(map[string]*archivedRecord),
		queue:    newQueueStore(),
		prov:     newProvenanceStore(),
	}
}

// Adapters returns the store wired into an adapter bundle.
func (s *Store) Adapters() adapter.Adapters {
	return adapter.Adapters{
		Database:   s,
		Queue:      s.queue,
		Merge:      s,
		Provenance: s.prov,
	}
}

var _ adapter.DatabaseAdapter = (*Store)(nil)
var _ adapter.MergeAdapter = (*Store)(nil)

// FindByBlockingKeys returns active records whose fields equal all of the
// given normalized key values. Fields pass through opts.KeyNormalizer
// when set, so transformed keys compare against equally transformed
// values; otherwise case is folded and whitespace collapsed.
func (s *Store) FindByBlockingKeys(_ context.Context, keys map[string]string, opts *adapter.QueryOptions) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var normalize func(field string, v any) string
	if opts != nil {
		normalize = opts.KeyNormalizer
	}
	var out []record.Record
	for _, id := range s.order {
		r := s.records[id]
		if adapter.MatchesBlockingKeys(r, keys, normalize) {
			out = append(out, r.Clone())
		}
	}
	return adapter.ApplyQueryOptions(out, opts), nil
}

// FindByIDs returns the active records with the given ids, skipping ids
// that are missing or archived.
func (s *Store) FindByIDs(_ context.Context, ids []string) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []record.Record
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// FindAll returns all active records in insertion order.
func (s *Store) FindAll(_ context.Context, opts *adapter.QueryOptions) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]record.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return adapter.ApplyQueryOptions(out, opts), nil
}

// Count returns the number of active records matching the filter.
func (s *Store) Count(_ context.Context, filter adapter.FilterCriteria) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if filter.Matches(r) {
			n++
		}
	}
	return n, nil
}

// Insert adds a record. The record must carry an id not already present.
func (s *Store) Insert(_ context.Context, r record.Record) error {
	id := r.ID()
	if id == "" {
		return errors.NewValidationError("record", nil, "record lacks a stable id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[id]; exists {
		return errors.NewValidationError("id", id, "record already exists")
	}
	s.records[id] = r.Clone()
	s.order = append(s.order, id)
	return nil
}

// Update merges the given fields into an existing record.
func (s *Store) Update(_ context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(id, fields)
}

func (s *Store) updateLocked(id string, fields map[string]any) error {
	r, ok := s.records[id]
	if !ok {
		return errors.NewNotFoundError("record", id)
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		r[k] = v
	}
	return nil
}

// Delete removes an active record.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return errors.NewNotFoundError("record", id)
	}
	delete(s.records, id)
	s.removeFromOrder(id)
	return nil
}

func (s *Store) removeFromOrder(id string) {
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// BatchInsert inserts all records or none.
func (s *Store) BatchInsert(_ context.Context, records []record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		id := r.ID()
		if id == "" {
			return errors.NewValidationError("record", nil, "record lacks a stable id")
		}
		if _, exists := s.records[id]; exists {
			return errors.NewValidationError("id", id, "record already exists")
		}
	}
	for _, r := range records {
		s.records[r.ID()] = r.Clone()
		s.order = append(s.order, r.ID())
	}
	return nil
}

// BatchUpdate applies all updates or none.
func (s *Store) BatchUpdate(_ context.Context, updates map[string]map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range updates {
		if _, ok := s.records[id]; !ok {
			return errors.NewNotFoundError("record", id)
		}
	}
	for id, fields := range updates {
		if err := s.updateLocked(id, fields); err != nil {
			return err
		}
	}
	return nil
}

// Transaction runs fn against the store. Memory has no rollback; an error
// from fn is returned as a transaction failure after any applied writes.
func (s *Store) Transaction(_ context.Context, fn func(tx adapter.DatabaseAdapter) error) error {
	if err := fn(s); err != nil {
		return errors.WrapTransaction("memstore transaction", err)
	}
	return nil
}

// Archive moves active records into the archive, preserving their field
// values for a later Restore.
func (s *Store) Archive(_ context.Context, ids []string, opts *adapter.ArchiveOptions) error {
	if opts == nil {
		opts = &adapter.ArchiveOptions{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.records[id]; !ok {
			return errors.NewNotFoundError("record", id)
		}
		if _, exists := s.archived[id]; exists {
			return errors.NewValidationError("id", id, "record already archived")
		}
	}
	for _, id := range ids {
		s.archived[id] = &archivedRecord{
			record:       s.records[id],
			reason:       opts.Reason,
			mergedIntoID: opts.MergedIntoID,
			archivedAt:   time.Now().UTC(),
		}
		delete(s.records, id)
		s.removeFromOrder(id)
	}
	return nil
}

// Restore moves archived records back to active state and returns them
// with their pre-archive field values.
func (s *Store) Restore(_ context.Context, ids []string) ([]record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if _, ok := s.archived[id]; !ok {
			return nil, errors.NewNotFoundError("archived record", id)
		}
	}
	out := make([]record.Record, 0, len(ids))
	for _, id := range ids {
		arch := s.archived[id]
		s.records[id] = arch.record
		s.order = append(s.order, id)
		delete(s.archived, id)
		out = append(out, arch.record.Clone())
	}
	return out, nil
}

// GetArchived returns archived records by id, skipping missing ids.
func (s *Store) GetArchived(_ context.Context, ids []string) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []record.Record
	for _, id := range ids {
		if arch, ok := s.archived[id]; ok {
			out = append(out, arch.record.Clone())
		}
	}
	return out, nil
}

// IsArchived reports archive membership per id.
func (s *Store) IsArchived(_ context.Context, ids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		_, ok := s.archived[id]
		out[id] = ok
	}
	return out, nil
}

// GetArchivedByGoldenRecord returns the records archived into the given
// golden record, in stable id order.
func (s *Store) GetArchivedByGoldenRecord(_ context.Context, goldenRecordID string) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, arch := range s.archived {
		if arch.mergedIntoID == goldenRecordID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]record.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.archived[id].record.Clone())
	}
	return out, nil
}

// PermanentlyDeleteArchived drops archived records beyond recovery.
func (s *Store) PermanentlyDeleteArchived(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.archived, id)
	}
	return nil
}

// CountArchived returns the number of currently archived records.
func (s *Store) CountArchived(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.archived), nil
}


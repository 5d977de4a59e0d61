package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/provenance"
)

// provenanceStore keys provenance rows by golden record id. Rows are
// audit state: MarkUnmerged mutates, nothing implicit deletes.
type provenanceStore struct {
	mu   sync.RWMutex
	rows map[string]*provenance.Provenance
}

var _ adapter.ProvenanceAdapter = (*provenanceStore)(nil)

func newProvenanceStore() *provenanceStore {
	return &provenanceStore{rows: make(map[string]*provenance.Provenance)}
}

func (ps *provenanceStore) SaveProvenance(_ context.Context, p *provenance.Provenance) error {
	if p == nil || p.GoldenRecordID == "" {
		return errors.NewValidationError("provenance", nil, "provenance lacks a golden record id")
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, exists := ps.rows[p.GoldenRecordID]; exists {
		return errors.NewValidationError("goldenRecordId", p.GoldenRecordID, "provenance already exists")
	}
	clone := *p
	ps.rows[p.GoldenRecordID] = &clone
	return nil
}

func (ps *provenanceStore) GetProvenance(_ context.Context, goldenRecordID string) (*provenance.Provenance, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	p, ok := ps.rows[goldenRecordID]
	if !ok {
		return nil, errors.NewNotFoundError("provenance", goldenRecordID)
	}
	clone := *p
	return &clone, nil
}

func (ps *provenanceStore) GetProvenanceBySourceID(_ context.Context, sourceRecordID string) ([]*provenance.Provenance, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var out []*provenance.Provenance
	for _, p := range ps.rows {
		for _, id := range p.SourceRecordIDs {
			if id == sourceRecordID {
				clone := *p
				out = append(out, &clone)
				break
			}
		}
	}
	return out, nil
}

func (ps *provenanceStore) MarkUnmerged(_ context.Context, goldenRecordID, unmergedBy, reason string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	p, ok := ps.rows[goldenRecordID]
	if !ok {
		return errors.NewNotFoundError("provenance", goldenRecordID)
	}
	p.MarkUnmerged(time.Now().UTC(), unmergedBy, reason)
	return nil
}

func (ps *provenanceStore) DeleteProvenance(_ context.Context, goldenRecordID string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, ok := ps.rows[goldenRecordID]; !ok {
		return errors.NewNotFoundError("provenance", goldenRecordID)
	}
	delete(ps.rows, goldenRecordID)
	return nil
}

func (ps *provenanceStore) ProvenanceExists(_ context.Context, goldenRecordID string) (bool, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	_, ok := ps.rows[goldenRecordID]
	return ok, nil
}

func (ps *provenanceStore) CountProvenance(_ context.Context) (int, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.rows), nil
}

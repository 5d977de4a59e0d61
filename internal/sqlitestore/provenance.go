package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/provenance"
)

// provenanceStore keeps one row per golden record, the full provenance
// document as JSON plus an unmerged flag for cheap filtering.
type provenanceStore struct {
	store *Store
}

var _ adapter.ProvenanceAdapter = (*provenanceStore)(nil)

func (ps *provenanceStore) SaveProvenance(ctx context.Context, prov *provenance.Provenance) error {
	if prov == nil || prov.GoldenRecordID == "" {
		return errors.NewValidationError("provenance", nil, "provenance lacks a golden record id")
	}
	data, err := json.Marshal(prov)
	if err != nil {
		return errors.WrapValidation("provenance", err)
	}

	var res sql.Result
	if err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = ps.store.db.ExecContext(ctx,
			`INSERT INTO provenance (golden_record_id, data, unmerged)
             VALUES (?, ?, ?) ON CONFLICT(golden_record_id) DO NOTHING`,
			prov.GoldenRecordID, string(data), boolToInt(prov.Unmerged))
		return execErr
	}); err != nil {
		return errors.WrapQuery("insert", "provenance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapQuery("insert", "provenance", err)
	}
	if n == 0 {
		return errors.NewValidationError("goldenRecordID", prov.GoldenRecordID, "provenance already exists")
	}
	return nil
}

func (ps *provenanceStore) GetProvenance(ctx context.Context, goldenRecordID string) (*provenance.Provenance, error) {
	var data string
	if err := retryOnBusy(ctx, func() error {
		return ps.store.db.QueryRowContext(ctx,
			`SELECT data FROM provenance WHERE golden_record_id = ?`, goldenRecordID).Scan(&data)
	}); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("provenance", goldenRecordID)
		}
		return nil, errors.WrapQuery("select", "provenance", err)
	}
	return decodeProvenance(data)
}

// GetProvenanceBySourceID scans every row. The table holds one row per
// merge, so this stays cheap at realistic volumes.
func (ps *provenanceStore) GetProvenanceBySourceID(ctx context.Context, sourceRecordID string) ([]*provenance.Provenance, error) {
	rows, err := ps.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*provenance.Provenance
	for _, prov := range rows {
		for _, id := range prov.SourceRecordIDs {
			if id == sourceRecordID {
				out = append(out, prov)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GoldenRecordID < out[j].GoldenRecordID })
	return out, nil
}

func (ps *provenanceStore) MarkUnmerged(ctx context.Context, goldenRecordID, unmergedBy, reason string) error {
	return ps.store.withTx(ctx, "mark unmerged", func(tx *sql.Tx) error {
		var data string
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM provenance WHERE golden_record_id = ?`, goldenRecordID).Scan(&data)
		if err == sql.ErrNoRows {
			return errors.NewNotFoundError("provenance", goldenRecordID)
		}
		if err != nil {
			return errors.WrapQuery("select", "provenance", err)
		}
		prov, err := decodeProvenance(data)
		if err != nil {
			return err
		}
		prov.MarkUnmerged(time.Now().UTC(), unmergedBy, reason)

		updated, err := json.Marshal(prov)
		if err != nil {
			return errors.WrapValidation("provenance", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE provenance SET data = ?, unmerged = 1 WHERE golden_record_id = ?`,
			string(updated), goldenRecordID)
		if err != nil {
			return errors.WrapQuery("update", "provenance", err)
		}
		return nil
	})
}

func (ps *provenanceStore) DeleteProvenance(ctx context.Context, goldenRecordID string) error {
	var res sql.Result
	if err := retryOnBusy(ctx, func() error {
		var err error
		res, err = ps.store.db.ExecContext(ctx,
			`DELETE FROM provenance WHERE golden_record_id = ?`, goldenRecordID)
		return err
	}); err != nil {
		return errors.WrapQuery("delete", "provenance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapQuery("delete", "provenance", err)
	}
	if n == 0 {
		return errors.NewNotFoundError("provenance", goldenRecordID)
	}
	return nil
}

func (ps *provenanceStore) ProvenanceExists(ctx context.Context, goldenRecordID string) (bool, error) {
	var n int
	if err := retryOnBusy(ctx, func() error {
		return ps.store.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM provenance WHERE golden_record_id = ?`, goldenRecordID).Scan(&n)
	}); err != nil {
		return false, errors.WrapQuery("count", "provenance", err)
	}
	return n > 0, nil
}

func (ps *provenanceStore) CountProvenance(ctx context.Context) (int, error) {
	var n int
	if err := retryOnBusy(ctx, func() error {
		return ps.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM provenance`).Scan(&n)
	}); err != nil {
		return 0, errors.WrapQuery("count", "provenance", err)
	}
	return n, nil
}

func (ps *provenanceStore) loadAll(ctx context.Context) ([]*provenance.Provenance, error) {
	var out []*provenance.Provenance
	if err := retryOnBusy(ctx, func() error {
		rows, err := ps.store.db.QueryContext(ctx, `SELECT data FROM provenance`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var data string
			if err := rows.Scan(&data); err != nil {
				return err
			}
			prov, err := decodeProvenance(data)
			if err != nil {
				return err
			}
			out = append(out, prov)
		}
		return rows.Err()
	}); err != nil {
		return nil, errors.WrapQuery("select", "provenance", err)
	}
	return out, nil
}

func decodeProvenance(data string) (*provenance.Provenance, error) {
	prov := &provenance.Provenance{}
	if err := json.Unmarshal([]byte(data), prov); err != nil {
		return nil, errors.WrapValidation("provenance", err)
	}
	return prov, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/record"
)

var _ adapter.DatabaseAdapter = (*Store)(nil)

// FindByBlockingKeys scans active records and keeps those matching every
// normalized key value. Key normalization (case folding, phonetic and
// prefix transforms via opts.KeyNormalizer) cannot be expressed portably
// in SQL, so the filter runs in Go over a rowid-ordered scan.
func (s *Store) FindByBlockingKeys(ctx context.Context, keys map[string]string, opts *adapter.QueryOptions) ([]record.Record, error) {
	all, err := loadRecords(ctx, s.db)
	if err != nil {
		return nil, err
	}
	var normalize func(field string, v any) string
	if opts != nil {
		normalize = opts.KeyNormalizer
	}
	var out []record.Record
	for _, r := range all {
		if adapter.MatchesBlockingKeys(r, keys, normalize) {
			out = append(out, r)
		}
	}
	return adapter.ApplyQueryOptions(out, opts), nil
}

// FindByIDs returns the active records with the given ids, skipping
// missing ones.
func (s *Store) FindByIDs(ctx context.Context, ids []string) ([]record.Record, error) {
	var out []record.Record
	for _, id := range ids {
		r, err := loadRecord(ctx, s.db, id)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// FindAll returns active records in insertion order.
func (s *Store) FindAll(ctx context.Context, opts *adapter.QueryOptions) ([]record.Record, error) {
	all, err := loadRecords(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return adapter.ApplyQueryOptions(all, opts), nil
}

// Count returns the number of active records matching the filter.
func (s *Store) Count(ctx context.Context, filter adapter.FilterCriteria) (int, error) {
	if len(filter) == 0 {
		var n int
		err := retryOnBusy(ctx, func() error {
			return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
		})
		if err != nil {
			return 0, errors.WrapQuery("count", "records", err)
		}
		return n, nil
	}

	all, err := loadRecords(ctx, s.db)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range all {
		if filter.Matches(r) {
			n++
		}
	}
	return n, nil
}

// Insert adds a record. The record must carry an id not already present.
func (s *Store) Insert(ctx context.Context, r record.Record) error {
	return insertRecord(ctx, s.db, r)
}

// Update merges the given fields into an existing record.
func (s *Store) Update(ctx context.Context, id string, fields map[string]any) error {
	return updateRecord(ctx, s.db, id, fields)
}

// Delete removes an active record.
func (s *Store) Delete(ctx context.Context, id string) error {
	return deleteRecord(ctx, s.db, id)
}

// BatchInsert inserts all records or none, inside one transaction.
func (s *Store) BatchInsert(ctx context.Context, records []record.Record) error {
	return s.Transaction(ctx, func(tx adapter.DatabaseAdapter) error {
		for _, r := range records {
			if err := tx.Insert(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// BatchUpdate applies all updates or none, inside one transaction.
func (s *Store) BatchUpdate(ctx context.Context, updates map[string]map[string]any) error {
	return s.Transaction(ctx, func(tx adapter.DatabaseAdapter) error {
		for id, fields := range updates {
			if err := tx.Update(ctx, id, fields); err != nil {
				return err
			}
		}
		return nil
	})
}

// Transaction runs fn inside a database transaction, rolling back when fn
// fails.
func (s *Store) Transaction(ctx context.Context, fn func(tx adapter.DatabaseAdapter) error) error {
	var txErr error
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if txErr = fn(&txStore{tx: tx}); txErr != nil {
			_ = tx.Rollback()
			return nil
		}
		return tx.Commit()
	})
	if err != nil {
		return errors.WrapTransaction("sqlite transaction", err)
	}
	if txErr != nil {
		return errors.WrapTransaction("sqlite transaction", txErr)
	}
	return nil
}

// txStore is the transactional view handed to Transaction callbacks.
type txStore struct {
	tx *sql.Tx
}

var _ adapter.DatabaseAdapter = (*txStore)(nil)

func (t *txStore) FindByBlockingKeys(ctx context.Context, keys map[string]string, opts *adapter.QueryOptions) ([]record.Record, error) {
	all, err := loadRecords(ctx, t.tx)
	if err != nil {
		return nil, err
	}
	var normalize func(field string, v any) string
	if opts != nil {
		normalize = opts.KeyNormalizer
	}
	var out []record.Record
	for _, r := range all {
		if adapter.MatchesBlockingKeys(r, keys, normalize) {
			out = append(out, r)
		}
	}
	return adapter.ApplyQueryOptions(out, opts), nil
}

func (t *txStore) FindByIDs(ctx context.Context, ids []string) ([]record.Record, error) {
	var out []record.Record
	for _, id := range ids {
		r, err := loadRecord(ctx, t.tx, id)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (t *txStore) FindAll(ctx context.Context, opts *adapter.QueryOptions) ([]record.Record, error) {
	all, err := loadRecords(ctx, t.tx)
	if err != nil {
		return nil, err
	}
	return adapter.ApplyQueryOptions(all, opts), nil
}

func (t *txStore) Count(ctx context.Context, filter adapter.FilterCriteria) (int, error) {
	all, err := loadRecords(ctx, t.tx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range all {
		if filter.Matches(r) {
			n++
		}
	}
	return n, nil
}

func (t *txStore) Insert(ctx context.Context, r record.Record) error {
	return insertRecord(ctx, t.tx, r)
}

func (t *txStore) Update(ctx context.Context, id string, fields map[string]any) error {
	return updateRecord(ctx, t.tx, id, fields)
}

func (t *txStore) Delete(ctx context.Context, id string) error {
	return deleteRecord(ctx, t.tx, id)
}

func (t *txStore) BatchInsert(ctx context.Context, records []record.Record) error {
	for _, r := range records {
		if err := insertRecord(ctx, t.tx, r); err != nil {
			return err
		}
	}
	return nil
}

func (t *txStore) BatchUpdate(ctx context.Context, updates map[string]map[string]any) error {
	for id, fields := range updates {
		if err := updateRecord(ctx, t.tx, id, fields); err != nil {
			return err
		}
	}
	return nil
}

// Transaction reuses the caller's transaction; SQLite has no nesting.
func (t *txStore) Transaction(_ context.Context, fn func(tx adapter.DatabaseAdapter) error) error {
	return fn(t)
}

func loadRecords(ctx context.Context, q querier) ([]record.Record, error) {
	rows, err := q.QueryContext(ctx, `SELECT data FROM records ORDER BY rowid`)
	if err != nil {
		return nil, errors.WrapQuery("select", "records", err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.WrapQuery("scan", "records", err)
		}
		r, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapQuery("iterate", "records", err)
	}
	return out, nil
}

func loadRecord(ctx context.Context, q querier, id string) (record.Record, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM records WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("record", id)
	}
	if err != nil {
		return nil, errors.WrapQuery("select", "record", err)
	}
	return decodeRecord(data)
}

func insertRecord(ctx context.Context, q querier, r record.Record) error {
	id := r.ID()
	if id == "" {
		return errors.NewValidationError("record", nil, "record lacks a stable id")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return errors.WrapValidation("record", err)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO records (id, data) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		id, string(data))
	if err != nil {
		return errors.WrapQuery("insert", "record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapQuery("insert", "record", err)
	}
	if n == 0 {
		return errors.NewValidationError("id", id, "record already exists")
	}
	return nil
}

func updateRecord(ctx context.Context, q querier, id string, fields map[string]any) error {
	r, err := loadRecord(ctx, q, id)
	if err != nil {
		return err
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		r[k] = v
	}
	data, err := json.Marshal(r)
	if err != nil {
		return errors.WrapValidation("record", err)
	}
	if _, err := q.ExecContext(ctx, `UPDATE records SET data = ? WHERE id = ?`, string(data), id); err != nil {
		return errors.WrapQuery("update", "record", err)
	}
	return nil
}

func deleteRecord(ctx context.Context, q querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return errors.WrapQuery("delete", "record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapQuery("delete", "record", err)
	}
	if n == 0 {
		return errors.NewNotFoundError("record", id)
	}
	return nil
}

func decodeRecord(data string) (record.Record, error) {
	var r record.Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, errors.WrapValidation("record", err)
	}
	return r, nil
}

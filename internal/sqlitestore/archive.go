package sqlitestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/record"
)

// withTx runs fn inside a raw transaction with busy retry, committing on
// success.
func (s *Store) withTx(ctx context.Context, operation string, fn func(tx *sql.Tx) error) error {
	var opErr error
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if opErr = fn(tx); opErr != nil {
			_ = tx.Rollback()
			return nil
		}
		return tx.Commit()
	})
	if err != nil {
		return errors.WrapTransaction(operation, err)
	}
	return opErr
}

// Archive moves active records into the archive inside one transaction,
// preserving their field values for a later Restore.
func (s *Store) Archive(ctx context.Context, ids []string, opts *adapter.ArchiveOptions) error {
	if opts == nil {
		opts = &adapter.ArchiveOptions{}
	}
	archivedAt := formatTime(time.Now())

	return s.withTx(ctx, "archive records", func(tx *sql.Tx) error {
		for _, id := range ids {
			var data string
			err := tx.QueryRowContext(ctx, `SELECT data FROM records WHERE id = ?`, id).Scan(&data)
			if err == sql.ErrNoRows {
				return errors.NewNotFoundError("record", id)
			}
			if err != nil {
				return errors.WrapQuery("select", "record", err)
			}

			res, err := tx.ExecContext(ctx,
				`INSERT INTO archived_records (id, data, reason, merged_into_id, archived_at)
                 VALUES (?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
				id, data, opts.Reason, opts.MergedIntoID, archivedAt)
			if err != nil {
				return errors.WrapQuery("insert", "archived record", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return errors.WrapQuery("insert", "archived record", err)
			}
			if n == 0 {
				return errors.NewValidationError("id", id, "record already archived")
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
				return errors.WrapQuery("delete", "record", err)
			}
		}
		return nil
	})
}

// Restore moves archived records back to the active table and returns
// them with their pre-archive field values.
func (s *Store) Restore(ctx context.Context, ids []string) ([]record.Record, error) {
	out := make([]record.Record, 0, len(ids))
	err := s.withTx(ctx, "restore records", func(tx *sql.Tx) error {
		out = out[:0]
		for _, id := range ids {
			var data string
			err := tx.QueryRowContext(ctx, `SELECT data FROM archived_records WHERE id = ?`, id).Scan(&data)
			if err == sql.ErrNoRows {
				return errors.NewNotFoundError("archived record", id)
			}
			if err != nil {
				return errors.WrapQuery("select", "archived record", err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO records (id, data) VALUES (?, ?)`, id, data); err != nil {
				return errors.WrapQuery("insert", "record", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM archived_records WHERE id = ?`, id); err != nil {
				return errors.WrapQuery("delete", "archived record", err)
			}

			r, err := decodeRecord(data)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetArchived returns archived records by id, skipping missing ids.
func (s *Store) GetArchived(ctx context.Context, ids []string) ([]record.Record, error) {
	var out []record.Record
	for _, id := range ids {
		var data string
		err := s.db.QueryRowContext(ctx, `SELECT data FROM archived_records WHERE id = ?`, id).Scan(&data)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, errors.WrapQuery("select", "archived record", err)
		}
		r, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// IsArchived reports archive membership per id.
func (s *Store) IsArchived(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM archived_records WHERE id = ?`, id).Scan(&n)
		if err != nil {
			return nil, errors.WrapQuery("select", "archived record", err)
		}
		out[id] = n > 0
	}
	return out, nil
}

// GetArchivedByGoldenRecord returns records archived into the given
// golden record, in stable id order.
func (s *Store) GetArchivedByGoldenRecord(ctx context.Context, goldenRecordID string) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM archived_records WHERE merged_into_id = ? ORDER BY id`, goldenRecordID)
	if err != nil {
		return nil, errors.WrapQuery("select", "archived records", err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.WrapQuery("scan", "archived records", err)
		}
		r, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapQuery("iterate", "archived records", err)
	}
	return out, nil
}

// PermanentlyDeleteArchived drops archived records beyond recovery.
func (s *Store) PermanentlyDeleteArchived(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := retryOnBusy(ctx, func() error {
			_, err := s.db.ExecContext(ctx, `DELETE FROM archived_records WHERE id = ?`, id)
			return err
		}); err != nil {
			return errors.WrapQuery("delete", "archived record", err)
		}
	}
	return nil
}

// CountArchived returns the number of currently archived records.
func (s *Store) CountArchived(ctx context.Context) (int, error) {
	var n int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_records`).Scan(&n)
	})
	if err != nil {
		return 0, errors.WrapQuery("count", "archived records", err)
	}
	return n, nil
}

package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/errors"
)

// queueStore persists queue items. Candidate records, potential matches,
// decisions, and context are JSON text; status, timestamps, priority,
// and tags get their own columns.
type queueStore struct {
	store *Store
}

var _ adapter.QueueAdapter = (*queueStore)(nil)

const queueColumns = `id, candidate_record, potential_matches, status, created_at,
    updated_at, decided_at, decided_by, decision, context, priority, tags`

func (qs *queueStore) InsertQueueItem(ctx context.Context, item *adapter.QueueItem) error {
	if item == nil || item.ID == "" {
		return errors.NewValidationError("queueItem", nil, "queue item lacks an id")
	}
	if !item.Status.Valid() {
		return errors.NewValidationError("status", item.Status, "unknown queue item status")
	}

	cols, err := encodeQueueItem(item)
	if err != nil {
		return err
	}
	var res sql.Result
	if err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = qs.store.db.ExecContext(ctx,
			`INSERT INTO queue_items (`+queueColumns+`)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			item.ID, cols.candidate, cols.matches, string(item.Status),
			formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
			cols.decidedAt, nullableString(item.DecidedBy),
			cols.decision, cols.context, item.Priority, cols.tags)
		return execErr
	}); err != nil {
		return errors.WrapQuery("insert", "queue item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapQuery("insert", "queue item", err)
	}
	if n == 0 {
		return errors.NewValidationError("id", item.ID, "queue item already exists")
	}
	return nil
}

// UpdateQueueItem applies a partial update: the stored item is decoded,
// the fields mapped on, and the row rewritten in one transaction.
func (qs *queueStore) UpdateQueueItem(ctx context.Context, id string, fields map[string]any) error {
	return qs.store.withTx(ctx, "update queue item", func(tx *sql.Tx) error {
		item, err := scanQueueItem(tx.QueryRowContext(ctx,
			`SELECT `+queueColumns+` FROM queue_items WHERE id = ?`, id))
		if err == sql.ErrNoRows {
			return errors.NewNotFoundError("queue item", id)
		}
		if err != nil {
			return err
		}
		for k, v := range fields {
			if err := adapter.ApplyQueueItemField(item, k, v); err != nil {
				return err
			}
		}

		cols, err := encodeQueueItem(item)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE queue_items SET candidate_record = ?, potential_matches = ?,
             status = ?, created_at = ?, updated_at = ?, decided_at = ?,
             decided_by = ?, decision = ?, context = ?, priority = ?, tags = ?
             WHERE id = ?`,
			cols.candidate, cols.matches, string(item.Status),
			formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
			cols.decidedAt, nullableString(item.DecidedBy),
			cols.decision, cols.context, item.Priority, cols.tags, id)
		if err != nil {
			return errors.WrapQuery("update", "queue item", err)
		}
		return nil
	})
}

func (qs *queueStore) FindQueueItems(ctx context.Context, filter *adapter.QueueFilter) ([]*adapter.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_items`
	var args []any
	if filter != nil && filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY rowid`

	var items []*adapter.QueueItem
	if err := retryOnBusy(ctx, func() error {
		rows, err := qs.store.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		items = items[:0]
		for rows.Next() {
			item, err := scanQueueItem(rows)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return rows.Err()
	}); err != nil {
		return nil, errors.WrapQuery("select", "queue items", err)
	}

	// Tags, time bounds, priority, ordering, and paging apply in Go.
	out := items[:0]
	for _, item := range items {
		if item.MatchesFilter(filter) {
			out = append(out, item)
		}
	}
	return pageQueueItems(out, filter), nil
}

func pageQueueItems(items []*adapter.QueueItem, filter *adapter.QueueFilter) []*adapter.QueueItem {
	if filter == nil {
		return items
	}
	adapter.SortQueueItems(items, filter.OrderBy)
	if filter.Offset > 0 {
		if filter.Offset >= len(items) {
			return nil
		}
		items = items[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(items) {
		items = items[:filter.Limit]
	}
	return items
}

func (qs *queueStore) FindQueueItemByID(ctx context.Context, id string) (*adapter.QueueItem, error) {
	var item *adapter.QueueItem
	if err := retryOnBusy(ctx, func() error {
		var err error
		item, err = scanQueueItem(qs.store.db.QueryRowContext(ctx,
			`SELECT `+queueColumns+` FROM queue_items WHERE id = ?`, id))
		return err
	}); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("queue item", id)
		}
		return nil, err
	}
	return item, nil
}

func (qs *queueStore) DeleteQueueItem(ctx context.Context, id string) error {
	var res sql.Result
	if err := retryOnBusy(ctx, func() error {
		var err error
		res, err = qs.store.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id)
		return err
	}); err != nil {
		return errors.WrapQuery("delete", "queue item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapQuery("delete", "queue item", err)
	}
	if n == 0 {
		return errors.NewNotFoundError("queue item", id)
	}
	return nil
}

func (qs *queueStore) CountQueueItems(ctx context.Context, filter *adapter.QueueFilter) (int, error) {
	if filter == nil || isStatusOnlyFilter(filter) {
		query := `SELECT COUNT(*) FROM queue_items`
		var args []any
		if filter != nil && filter.Status != "" {
			query += ` WHERE status = ?`
			args = append(args, string(filter.Status))
		}
		var n int
		if err := retryOnBusy(ctx, func() error {
			return qs.store.db.QueryRowContext(ctx, query, args...).Scan(&n)
		}); err != nil {
			return 0, errors.WrapQuery("count", "queue items", err)
		}
		return n, nil
	}

	items, err := qs.FindQueueItems(ctx, &adapter.QueueFilter{
		Status:   filter.Status,
		Tags:     filter.Tags,
		Since:    filter.Since,
		Until:    filter.Until,
		Priority: filter.Priority,
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func isStatusOnlyFilter(f *adapter.QueueFilter) bool {
	return len(f.Tags) == 0 && f.Since == nil && f.Until == nil && f.Priority == nil
}

func (qs *queueStore) BatchInsertQueueItems(ctx context.Context, items []*adapter.QueueItem) error {
	return qs.store.withTx(ctx, "batch insert queue items", func(tx *sql.Tx) error {
		for _, item := range items {
			if item == nil || item.ID == "" {
				return errors.NewValidationError("queueItem", nil, "queue item lacks an id")
			}
			cols, err := encodeQueueItem(item)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx,
				`INSERT INTO queue_items (`+queueColumns+`)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
				item.ID, cols.candidate, cols.matches, string(item.Status),
				formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
				cols.decidedAt, nullableString(item.DecidedBy),
				cols.decision, cols.context, item.Priority, cols.tags)
			if err != nil {
				return errors.WrapQuery("insert", "queue item", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return errors.WrapQuery("insert", "queue item", err)
			}
			if n == 0 {
				return errors.NewValidationError("id", item.ID, "queue item already exists")
			}
		}
		return nil
	})
}

type encodedQueueItem struct {
	candidate string
	matches   string
	decision  any
	context   any
	decidedAt any
	tags      string
}

func encodeQueueItem(item *adapter.QueueItem) (*encodedQueueItem, error) {
	candidate, err := json.Marshal(item.CandidateRecord)
	if err != nil {
		return nil, errors.WrapValidation("candidateRecord", err)
	}
	matchList := item.PotentialMatches
	if matchList == nil {
		matchList = []adapter.PotentialMatch{}
	}
	matches, err := json.Marshal(matchList)
	if err != nil {
		return nil, errors.WrapValidation("potentialMatches", err)
	}
	tagList := item.Tags
	if tagList == nil {
		tagList = []string{}
	}
	tags, err := json.Marshal(tagList)
	if err != nil {
		return nil, errors.WrapValidation("tags", err)
	}

	out := &encodedQueueItem{
		candidate: string(candidate),
		matches:   string(matches),
		tags:      string(tags),
	}
	if item.Decision != nil {
		d, err := json.Marshal(item.Decision)
		if err != nil {
			return nil, errors.WrapValidation("decision", err)
		}
		out.decision = string(d)
	}
	if item.Context != nil {
		c, err := json.Marshal(item.Context)
		if err != nil {
			return nil, errors.WrapValidation("context", err)
		}
		out.context = string(c)
	}
	if item.DecidedAt != nil {
		out.decidedAt = formatTime(*item.DecidedAt)
	}
	return out, nil
}

func scanQueueItem(scanner interface{ Scan(dest ...any) error }) (*adapter.QueueItem, error) {
	var (
		id         string
		candidate  string
		matches    string
		status     string
		createdRaw string
		updatedRaw string
		decidedRaw sql.NullString
		decidedBy  sql.NullString
		decision   sql.NullString
		itemCtx    sql.NullString
		priority   int
		tags       string
	)
	if err := scanner.Scan(&id, &candidate, &matches, &status, &createdRaw,
		&updatedRaw, &decidedRaw, &decidedBy, &decision, &itemCtx, &priority, &tags); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errors.WrapQuery("scan", "queue item", err)
	}

	item := &adapter.QueueItem{
		ID:        id,
		Status:    adapter.Status(status),
		CreatedAt: parseTime(createdRaw),
		UpdatedAt: parseTime(updatedRaw),
		DecidedBy: decidedBy.String,
		Priority:  priority,
	}
	if err := json.Unmarshal([]byte(candidate), &item.CandidateRecord); err != nil {
		return nil, errors.WrapValidation("candidateRecord", err)
	}
	if err := json.Unmarshal([]byte(matches), &item.PotentialMatches); err != nil {
		return nil, errors.WrapValidation("potentialMatches", err)
	}
	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		return nil, errors.WrapValidation("tags", err)
	}
	if decidedRaw.Valid {
		t := parseTime(decidedRaw.String)
		item.DecidedAt = &t
	}
	if decision.Valid {
		item.Decision = &adapter.Decision{}
		if err := json.Unmarshal([]byte(decision.String), item.Decision); err != nil {
			return nil, errors.WrapValidation("decision", err)
		}
	}
	if itemCtx.Valid {
		if err := json.Unmarshal([]byte(itemCtx.String), &item.Context); err != nil {
			return nil, errors.WrapValidation("context", err)
		}
	}
	return item, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

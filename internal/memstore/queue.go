package memstore

import (
	"context"
	"sync"

	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/errors"
)

// queueStore holds queue items in insertion order.
type queueStore struct {
	mu    sync.RWMutex
	items map[string]*adapter.QueueItem
	order []string
}

var _ adapter.QueueAdapter = (*queueStore)(nil)

func newQueueStore() *queueStore {
	return &queueStore{items: make(map[string]*adapter.QueueItem)}
}

func (qs *queueStore) InsertQueueItem(_ context.Context, item *adapter.QueueItem) error {
	if item == nil || item.ID == "" {
		return errors.NewValidationError("queueItem", nil, "queue item lacks an id")
	}
	if !item.Status.Valid() {
		return errors.NewValidationError("status", item.Status, "unknown queue item status")
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()
	if _, exists := qs.items[item.ID]; exists {
		return errors.NewValidationError("id", item.ID, "queue item already exists")
	}
	qs.items[item.ID] = item.Clone()
	qs.order = append(qs.order, item.ID)
	return nil
}

func (qs *queueStore) UpdateQueueItem(_ context.Context, id string, fields map[string]any) error {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	item, ok := qs.items[id]
	if !ok {
		return errors.NewNotFoundError("queue item", id)
	}
	for k, v := range fields {
		if err := adapter.ApplyQueueItemField(item, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (qs *queueStore) FindQueueItems(_ context.Context, filter *adapter.QueueFilter) ([]*adapter.QueueItem, error) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	var out []*adapter.QueueItem
	for _, id := range qs.order {
		item := qs.items[id]
		if item.MatchesFilter(filter) {
			out = append(out, item.Clone())
		}
	}
	if filter == nil {
		return out, nil
	}

	adapter.SortQueueItems(out, filter.OrderBy)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (qs *queueStore) FindQueueItemByID(_ context.Context, id string) (*adapter.QueueItem, error) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	item, ok := qs.items[id]
	if !ok {
		return nil, errors.NewNotFoundError("queue item", id)
	}
	return item.Clone(), nil
}

func (qs *queueStore) DeleteQueueItem(_ context.Context, id string) error {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if _, ok := qs.items[id]; !ok {
		return errors.NewNotFoundError("queue item", id)
	}
	delete(qs.items, id)
	for i, existing := range qs.order {
		if existing == id {
			qs.order = append(qs.order[:i], qs.order[i+1:]...)
			break
		}
	}
	return nil
}

func (qs *queueStore) CountQueueItems(_ context.Context, filter *adapter.QueueFilter) (int, error) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	n := 0
	for _, item := range qs.items {
		if item.MatchesFilter(filter) {
			n++
		}
	}
	return n, nil
}

func (qs *queueStore) BatchInsertQueueItems(_ context.Context, items []*adapter.QueueItem) error {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	for _, item := range items {
		if item == nil || item.ID == "" {
			return errors.NewValidationError("queueItem", nil, "queue item lacks an id")
		}
		if _, exists := qs.items[item.ID]; exists {
			return errors.NewValidationError("id", item.ID, "queue item already exists")
		}
	}
	for _, item := range items {
		qs.items[item.ID] = item.Clone()
		qs.order = append(qs.order, item.ID)
	}
	return nil
}

package adapter

import (
	"sort"

	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/record"
)

// ApplyQueueItemField maps a partial-update field onto the item. Unknown
// fields are validation errors so typos fail loudly.
func ApplyQueueItemField(item *QueueItem, field string, value any) error {
	switch field {
	case "status":
		status, ok := value.(Status)
		if !ok {
			if s, isString := value.(string); isString {
				status = Status(s)
				ok = true
			}
		}
		if !ok || !status.Valid() {
			return errors.NewValidationError("status", value, "unknown queue item status")
		}
		item.Status = status
	case "updatedAt":
		t, ok := record.CoerceTime(value)
		if !ok {
			return errors.NewValidationError("updatedAt", value, "not a timestamp")
		}
		item.UpdatedAt = t
	case "decidedAt":
		t, ok := record.CoerceTime(value)
		if !ok {
			return errors.NewValidationError("decidedAt", value, "not a timestamp")
		}
		item.DecidedAt = &t
	case "decidedBy":
		item.DecidedBy = record.CoerceString(value)
	case "decision":
		d, ok := value.(*Decision)
		if !ok {
			return errors.NewValidationError("decision", value, "not a decision")
		}
		item.Decision = d
	case "priority":
		n, ok := record.CoerceNumber(value)
		if !ok {
			return errors.NewValidationError("priority", value, "not a number")
		}
		item.Priority = int(n)
	case "tags":
		tags, ok := value.([]string)
		if !ok {
			return errors.NewValidationError("tags", value, "not a string slice")
		}
		item.Tags = tags
	case "context":
		c, ok := value.(map[string]any)
		if !ok {
			return errors.NewValidationError("context", value, "not a map")
		}
		item.Context = c
	default:
		return errors.NewValidationError(field, value, "unknown queue item field")
	}
	return nil
}

// SortQueueItems orders items in place by the given field. Unrecognized
// fields fall back to creation time.
func SortQueueItems(items []*QueueItem, orderBy *OrderBy) {
	if orderBy == nil {
		return
	}
	field := orderBy.Field
	desc := orderBy.Direction == SortDesc
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return lessQueueField(items[j], items[i], field)
		}
		return lessQueueField(items[i], items[j], field)
	})
}

func lessQueueField(a, b *QueueItem, field string) bool {
	switch field {
	case "priority":
		return a.Priority < b.Priority
	case "updatedAt":
		return a.UpdatedAt.Before(b.UpdatedAt)
	case "status":
		return a.Status < b.Status
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

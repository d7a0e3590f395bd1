package notify

import (
	"sort"
	"time"
)

const DefaultMaxStored = 400

type MergeResult struct {
	Items    []StoredNotification
	Inserted []string
	Updated  []string
	Evicted  []string
}

// Merge folds incoming events into existing, keyed by ID. Incoming events are
// applied in the order given. An existing entry keeps its Read flag and takes
// every other field from the newer event; a new entry starts unread. The
// result is sorted newest-first by parsed timestamp and cut to limit entries.
// Neither input slice is modified.
func Merge(existing []StoredNotification, incoming []NormalizedEvent, limit int) MergeResult {
	items := make([]StoredNotification, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))
	for _, item := range existing {
		if _, dup := index[item.ID]; dup {
			continue
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}

	result := MergeResult{}
	insertedThisBatch := map[string]struct{}{}
	updatedThisBatch := map[string]struct{}{}
	for _, event := range incoming {
		if i, ok := index[event.ID]; ok {
			items[i] = StoredNotification{NormalizedEvent: event, Read: items[i].Read}
			if _, fresh := insertedThisBatch[event.ID]; fresh {
				continue
			}
			if _, seen := updatedThisBatch[event.ID]; !seen {
				updatedThisBatch[event.ID] = struct{}{}
				result.Updated = append(result.Updated, event.ID)
			}
			continue
		}
		index[event.ID] = len(items)
		items = append(items, StoredNotification{NormalizedEvent: event})
		insertedThisBatch[event.ID] = struct{}{}
		result.Inserted = append(result.Inserted, event.ID)
	}

	kept, evicted := SortAndBound(items, limit)
	result.Items = kept
	result.Evicted = evicted
	if len(evicted) > 0 && len(result.Inserted) > 0 {
		gone := make(map[string]struct{}, len(evicted))
		for _, id := range evicted {
			gone[id] = struct{}{}
		}
		inserted := result.Inserted[:0]
		for _, id := range result.Inserted {
			if _, ok := gone[id]; !ok {
				inserted = append(inserted, id)
			}
		}
		result.Inserted = inserted
	}
	return result
}

// SortAndBound orders items newest-first and keeps at most limit of them,
// returning the ids that were cut. Unparseable timestamps sort after every
// parseable one; ties keep their input order. limit <= 0 means DefaultMaxStored.
func SortAndBound(items []StoredNotification, limit int) ([]StoredNotification, []string) {
	if limit <= 0 {
		limit = DefaultMaxStored
	}
	type keyed struct {
		item StoredNotification
		at   time.Time
		ok   bool
	}
	rows := make([]keyed, len(items))
	for i, item := range items {
		ts, ok := item.Time()
		rows[i] = keyed{item: item, at: ts, ok: ok}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		if rows[a].ok != rows[b].ok {
			return rows[a].ok
		}
		return rows[a].ok && rows[a].at.After(rows[b].at)
	})

	keep := len(rows)
	if keep > limit {
		keep = limit
	}
	out := make([]StoredNotification, keep)
	for i := 0; i < keep; i++ {
		out[i] = rows[i].item
	}
	var evicted []string
	for i := keep; i < len(rows); i++ {
		evicted = append(evicted, rows[i].item.ID)
	}
	return out, evicted
}

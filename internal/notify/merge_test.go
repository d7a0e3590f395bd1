package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(id, typ string, at time.Time) NormalizedEvent {
	return NormalizedEvent{
		ID:        id,
		Type:      typ,
		Message:   "message " + id,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Raw:       RecordPayload{"id": id},
	}
}

func ids(items []StoredNotification) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestMerge_InsertsNewestFirst(t *testing.T) {
	base := fixedNow()
	existing := []StoredNotification{{NormalizedEvent: event("old", "INFO", base)}}
	result := Merge(existing, []NormalizedEvent{event("new", "INFO", base.Add(time.Minute))}, 10)

	assert.Equal(t, []string{"new", "old"}, ids(result.Items))
	assert.Equal(t, []string{"new"}, result.Inserted)
	assert.Empty(t, result.Updated)
	assert.Empty(t, result.Evicted)
	assert.False(t, result.Items[0].Read)
}

func TestMerge_DuplicateKeepsReadAndTakesNewFields(t *testing.T) {
	base := fixedNow()
	existing := []StoredNotification{{NormalizedEvent: event("n1", "INFO", base), Read: true}}
	result := Merge(existing, []NormalizedEvent{event("n1", "ERROR", base)}, 10)

	require.Len(t, result.Items, 1)
	assert.Equal(t, "ERROR", result.Items[0].Type)
	assert.True(t, result.Items[0].Read)
	assert.Empty(t, result.Inserted)
	assert.Equal(t, []string{"n1"}, result.Updated)
}

func TestMerge_RepeatedInsideBatchCountsOnce(t *testing.T) {
	base := fixedNow()
	result := Merge(nil, []NormalizedEvent{event("a", "INFO", base), event("a", "WARN", base)}, 10)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "WARN", result.Items[0].Type)
	assert.Equal(t, []string{"a"}, result.Inserted)
	assert.Empty(t, result.Updated)
}

func TestMerge_EvictsOldestBeyondLimit(t *testing.T) {
	base := fixedNow()
	var existing []StoredNotification
	for i := 0; i < 3; i++ {
		existing = append(existing, StoredNotification{NormalizedEvent: event(fmt.Sprintf("e%d", i), "INFO", base.Add(-time.Duration(i)*time.Minute))})
	}
	result := Merge(existing, []NormalizedEvent{event("fresh", "INFO", base.Add(time.Hour))}, 3)

	assert.Equal(t, []string{"fresh", "e0", "e1"}, ids(result.Items))
	assert.Equal(t, []string{"e2"}, result.Evicted)
	assert.Equal(t, []string{"fresh"}, result.Inserted)
}

func TestMerge_InsertedButEvictedIsNotReported(t *testing.T) {
	base := fixedNow()
	existing := []StoredNotification{{NormalizedEvent: event("keep", "INFO", base)}}
	result := Merge(existing, []NormalizedEvent{event("ancient", "INFO", base.Add(-time.Hour))}, 1)

	assert.Equal(t, []string{"keep"}, ids(result.Items))
	assert.Equal(t, []string{"ancient"}, result.Evicted)
	assert.Empty(t, result.Inserted)
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	base := fixedNow()
	existing := []StoredNotification{
		{NormalizedEvent: event("b", "INFO", base)},
		{NormalizedEvent: event("a", "INFO", base.Add(time.Minute))},
	}
	_ = Merge(existing, []NormalizedEvent{event("b", "ERROR", base)}, 10)
	assert.Equal(t, []string{"b", "a"}, ids(existing))
	assert.Equal(t, "INFO", existing[0].Type)
}

func TestSortAndBound_UnparseableTimestampsSortLast(t *testing.T) {
	base := fixedNow()
	items := []StoredNotification{
		{NormalizedEvent: NormalizedEvent{ID: "bad", Timestamp: "not a time"}},
		{NormalizedEvent: event("older", "INFO", base)},
		{NormalizedEvent: event("newer", "INFO", base.Add(time.Second))},
	}
	kept, evicted := SortAndBound(items, 0)
	assert.Equal(t, []string{"newer", "older", "bad"}, ids(kept))
	assert.Empty(t, evicted)
}

func TestSortAndBound_DefaultLimit(t *testing.T) {
	base := fixedNow()
	items := make([]StoredNotification, 0, DefaultMaxStored+1)
	for i := 0; i <= DefaultMaxStored; i++ {
		items = append(items, StoredNotification{NormalizedEvent: event(fmt.Sprintf("n%03d", i), "INFO", base.Add(time.Duration(i)*time.Second))})
	}
	kept, evicted := SortAndBound(items, 0)
	assert.Len(t, kept, DefaultMaxStored)
	assert.Equal(t, []string{"n000"}, evicted)
	assert.Equal(t, fmt.Sprintf("n%03d", DefaultMaxStored), kept[0].ID)
}

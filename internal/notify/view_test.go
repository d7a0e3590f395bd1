package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleItems() []StoredNotification {
	base := fixedNow()
	return []StoredNotification{
		{NormalizedEvent: NormalizedEvent{ID: "n3", Type: "PAYMENT_FAILED", Message: "Card declined", Recipient: "ana@example.com", Timestamp: base.Add(3 * time.Minute).Format(time.RFC3339)}},
		{NormalizedEvent: NormalizedEvent{ID: "n2", Type: "LOW_STOCK", Message: "Widget below threshold", Recipient: "ops@example.com", Timestamp: base.Add(2 * time.Minute).Format(time.RFC3339)}, Read: true},
		{NormalizedEvent: NormalizedEvent{ID: "n1", Type: "PAYMENT_FAILED", Message: "Retry scheduled", Recipient: "bob@example.com", Timestamp: base.Add(time.Minute).Format(time.RFC3339)}},
	}
}

func TestFilter_SearchMatchesAnyField(t *testing.T) {
	items := sampleItems()
	assert.Equal(t, []string{"n2"}, ids(Filter(items, Query{Search: "  OPS@ "})))
	assert.Equal(t, []string{"n3"}, ids(Filter(items, Query{Search: "declined"})))
	assert.Equal(t, []string{"n3", "n1"}, ids(Filter(items, Query{Search: "payment"})))
	assert.Equal(t, []string{"n1"}, ids(Filter(items, Query{Search: "n1"})))
	assert.Empty(t, Filter(items, Query{Search: "nothing like this"}))
}

func TestFilter_UnreadAndType(t *testing.T) {
	items := sampleItems()
	assert.Equal(t, []string{"n3", "n1"}, ids(Filter(items, Query{UnreadOnly: true})))
	assert.Equal(t, []string{"n2"}, ids(Filter(items, Query{Type: "LOW_STOCK"})))
	assert.Equal(t, []string{"n3", "n2", "n1"}, ids(Filter(items, Query{Type: AllTypes})))
	assert.Empty(t, Filter(items, Query{Type: "LOW_STOCK", UnreadOnly: true}))
}

func TestFilter_EmptyQueryIsIdentity(t *testing.T) {
	items := sampleItems()
	assert.Equal(t, ids(items), ids(Filter(items, Query{})))
}

func TestVisibleTypes(t *testing.T) {
	items := append(sampleItems(), StoredNotification{NormalizedEvent: NormalizedEvent{ID: "blank"}})
	assert.Equal(t, []string{AllTypes, "PAYMENT_FAILED", "LOW_STOCK", UnknownType}, VisibleTypes(items))
	assert.Equal(t, []string{AllTypes}, VisibleTypes(nil))
}

func TestProject(t *testing.T) {
	items := sampleItems()
	view := Project(items, Query{Search: "payment"}, func(id string) bool { return id == "n1" })

	assert.Equal(t, 3, view.Total)
	assert.Equal(t, 2, view.Unread)
	assert.Equal(t, []string{AllTypes, "PAYMENT_FAILED", "LOW_STOCK"}, view.Types)
	if assert.Len(t, view.Items, 2) {
		assert.False(t, view.Items[0].Highlighted)
		assert.True(t, view.Items[1].Highlighted)
		assert.Equal(t, SeverityError, view.Items[0].Severity)
		assert.Equal(t, "Card declined", view.Items[0].Summary)
	}
}

func TestProject_NilHighlighter(t *testing.T) {
	view := Project(sampleItems(), Query{}, nil)
	for _, item := range view.Items {
		assert.False(t, item.Highlighted)
	}
}

func TestSeverity(t *testing.T) {
	cases := map[string]string{
		"PAYMENT_FAILED": SeverityError,
		"SYSTEM_ERROR":   SeverityError,
		"LOW_STOCK":      SeverityWarning,
		"warning":        SeverityWarning,
		"INFO":           SeverityInfo,
		"TEST_EVENT":     SeverityInfo,
		"ORDER_PLACED":   SeverityDefault,
		"":               SeverityDefault,
	}
	for in, want := range cases {
		assert.Equal(t, want, Severity(in), in)
	}
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", Shorten("short", 10))
	got := Shorten(strings.Repeat("ü", 20), 10)
	assert.Equal(t, 10, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestDescribe(t *testing.T) {
	item := StoredNotification{NormalizedEvent: NormalizedEvent{
		ID:      "d1",
		Type:    "ORDER_WARNING",
		Message: strings.Repeat("x", 200),
		Raw:     RecordPayload{"id": "d1"},
	}}
	row := Describe(item, true)
	assert.True(t, row.Highlighted)
	assert.Equal(t, SeverityWarning, row.Severity)
	assert.Equal(t, 160, len([]rune(row.Summary)))
	assert.Equal(t, `{"id":"d1"}`, row.RawSummary)
	assert.Equal(t, "d1", row.Notification.ID)
}

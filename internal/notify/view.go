package notify

import (
	"strings"
	"unicode/utf8"
)

// AllTypes is the sentinel type value meaning "no type filter".
const AllTypes = "ALL"

const summaryRunes = 160

type Query struct {
	Search     string
	UnreadOnly bool
	Type       string
}

type ViewItem struct {
	Notification StoredNotification
	Highlighted  bool
	Severity     string
	Summary      string
	RawSummary   string
}

type View struct {
	Items  []ViewItem
	Types  []string
	Total  int
	Unread int
}

// VisibleTypes returns AllTypes followed by each distinct type in the order
// it first appears in items. Empty types are reported as UnknownType.
func VisibleTypes(items []StoredNotification) []string {
	types := []string{AllTypes}
	seen := map[string]struct{}{}
	for _, item := range items {
		t := item.Type
		if t == "" {
			t = UnknownType
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		types = append(types, t)
	}
	return types
}

// Filter keeps the entries matching q, preserving input order.
func Filter(items []StoredNotification, q Query) []StoredNotification {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	typeFilter := strings.TrimSpace(q.Type)
	out := make([]StoredNotification, 0, len(items))
	for _, item := range items {
		if q.UnreadOnly && item.Read {
			continue
		}
		if typeFilter != "" && typeFilter != AllTypes && item.Type != typeFilter {
			continue
		}
		if needle != "" && !matchesSearch(item, needle) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func matchesSearch(item StoredNotification, needle string) bool {
	for _, field := range []string{item.ID, item.Recipient, item.Message, item.Type} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// Project builds the presentation view of items. highlighted may be nil.
func Project(items []StoredNotification, q Query, highlighted func(id string) bool) View {
	view := View{
		Types: VisibleTypes(items),
		Total: len(items),
	}
	for _, item := range items {
		if !item.Read {
			view.Unread++
		}
	}
	filtered := Filter(items, q)
	view.Items = make([]ViewItem, 0, len(filtered))
	for _, item := range filtered {
		view.Items = append(view.Items, Describe(item, highlighted != nil && highlighted(item.ID)))
	}
	return view
}

// Describe derives the presentation fields of a single entry.
func Describe(item StoredNotification, highlighted bool) ViewItem {
	return ViewItem{
		Notification: item,
		Highlighted:  highlighted,
		Severity:     Severity(item.Type),
		Summary:      Shorten(item.Message, summaryRunes),
		RawSummary:   Shorten(rawText(item.Raw), summaryRunes),
	}
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
	SeverityDefault = "default"
)

// Severity classifies a type tag for presentation.
func Severity(eventType string) string {
	t := strings.ToUpper(eventType)
	switch {
	case t == "":
		return SeverityDefault
	case strings.Contains(t, "ERROR"), strings.Contains(t, "FAIL"):
		return SeverityError
	case strings.Contains(t, "WARN"), strings.Contains(t, "LOW_STOCK"):
		return SeverityWarning
	case strings.Contains(t, "INFO"), strings.Contains(t, "TEST"):
		return SeverityInfo
	default:
		return SeverityDefault
	}
}

// Shorten cuts s to at most limit runes, ending with an ellipsis when cut.
func Shorten(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

func rawText(raw RawEvent) string {
	switch v := raw.(type) {
	case nil:
		return "{}"
	case StringPayload:
		return compactJSON(string(v))
	case RecordPayload:
		return compactJSON(map[string]any(v))
	default:
		return ""
	}
}

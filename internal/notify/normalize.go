package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	UnknownType = "UNKNOWN"

	fallbackMessageRunes = 400
)

// ProbeTable lists, per canonical attribute, the payload keys consulted in
// order. The first key holding a non-empty value wins. Dotted keys descend
// into nested records.
type ProbeTable struct {
	ID        []string
	Type      []string
	Message   []string
	Recipient []string
	Timestamp []string
}

// DefaultProbes covers the notification service's own field names, the
// common alternates seen from other producers, and the canonical names used
// by NormalizedEvent itself.
var DefaultProbes = ProbeTable{
	ID:        []string{"notificationId", "id", "notification_id"},
	Type:      []string{"type", "eventType", "event.eventType", "event.type"},
	Message:   []string{"message", "msg", "body"},
	Recipient: []string{"userEmail", "recipient", "email", "to"},
	Timestamp: []string{"timestamp", "eventTime", "time"},
}

type NormalizerOptions struct {
	Probes ProbeTable
	IDs    IDSource
	Now    func() time.Time
}

// Normalizer maps raw events onto NormalizedEvent. It never fails.
type Normalizer struct {
	probes ProbeTable
	ids    IDSource
	now    func() time.Time
}

func NewNormalizer(opts NormalizerOptions) *Normalizer {
	probes := opts.Probes
	if len(probes.ID) == 0 {
		probes.ID = DefaultProbes.ID
	}
	if len(probes.Type) == 0 {
		probes.Type = DefaultProbes.Type
	}
	if len(probes.Message) == 0 {
		probes.Message = DefaultProbes.Message
	}
	if len(probes.Recipient) == 0 {
		probes.Recipient = DefaultProbes.Recipient
	}
	if len(probes.Timestamp) == 0 {
		probes.Timestamp = DefaultProbes.Timestamp
	}
	ids := opts.IDs
	if ids == nil {
		ids = NewULIDSource()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Normalizer{probes: probes, ids: ids, now: now}
}

var defaultNormalizer = NewNormalizer(NormalizerOptions{})

// Normalize uses the default probe table and identity source.
func Normalize(raw RawEvent) NormalizedEvent {
	return defaultNormalizer.Normalize(raw)
}

func (n *Normalizer) Normalize(raw RawEvent) NormalizedEvent {
	switch v := raw.(type) {
	case StringPayload:
		if record, ok := embeddedRecord(string(v)); ok {
			event := n.normalizeRecord(record)
			event.Raw = v
			return event
		}
		return NormalizedEvent{
			ID:        n.ids.NewID(),
			Type:      UnknownType,
			Message:   string(v),
			Timestamp: n.ingestTime(),
			Raw:       v,
		}
	case RecordPayload:
		event := n.normalizeRecord(v)
		event.Raw = v
		return event
	default:
		event := n.normalizeRecord(RecordPayload{})
		event.Raw = RecordPayload{}
		return event
	}
}

func (n *Normalizer) normalizeRecord(record RecordPayload) NormalizedEvent {
	event := NormalizedEvent{}

	if v, ok := probe(record, n.probes.ID); ok {
		event.ID = stringify(v)
	} else {
		event.ID = n.ids.NewID()
	}

	if v, ok := probe(record, n.probes.Type); ok {
		event.Type = stringify(v)
	} else {
		event.Type = UnknownType
	}

	if v, ok := probe(record, n.probes.Message); ok {
		event.Message = stringify(v)
	} else {
		event.Message = truncateRunes(compactJSON(record), fallbackMessageRunes)
	}

	if v, ok := probe(record, n.probes.Recipient); ok {
		event.Recipient = stringify(v)
	}

	if v, ok := probe(record, n.probes.Timestamp); ok {
		event.Timestamp = timestampString(v)
	} else {
		event.Timestamp = n.ingestTime()
	}
	return event
}

func (n *Normalizer) ingestTime() string {
	return n.now().UTC().Format(time.RFC3339Nano)
}

// embeddedRecord unwraps payloads that were JSON-encoded twice by the
// producer: a string whose text is itself a JSON object.
func embeddedRecord(text string) (RecordPayload, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	raw, err := DecodeRawEvent([]byte(trimmed))
	if err != nil {
		return nil, false
	}
	record, ok := raw.(RecordPayload)
	return record, ok
}

func probe(record RecordPayload, keys []string) (any, bool) {
	for _, key := range keys {
		if v, ok := lookupPath(record, key); ok && present(v) {
			return v, true
		}
	}
	return nil, false
}

func lookupPath(record map[string]any, path string) (any, bool) {
	current := any(record)
	for _, part := range strings.Split(path, ".") {
		var m map[string]any
		switch node := current.(type) {
		case map[string]any:
			m = node
		case RecordPayload:
			m = node
		default:
			return nil, false
		}
		next, ok := m[part]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// present reports whether a probed value counts as set. False and zero are
// treated like missing fields so the next candidate key is tried.
func present(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(value) != ""
	case bool:
		return value
	case json.Number:
		f, err := value.Float64()
		return err != nil || f != 0
	case float64:
		return value != 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case json.Number:
		return value.String()
	case bool, float64, int, int64:
		return fmt.Sprint(value)
	default:
		return compactJSON(value)
	}
}

func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// timestampString renders numeric epochs (seconds or milliseconds) as
// RFC 3339; anything else is kept verbatim.
func timestampString(v any) string {
	var epoch float64
	switch value := v.(type) {
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return value.String()
		}
		epoch = f
	case float64:
		epoch = value
	default:
		return strings.TrimSpace(stringify(v))
	}
	if math.IsNaN(epoch) || math.IsInf(epoch, 0) {
		return stringify(v)
	}
	var ts time.Time
	if math.Abs(epoch) >= 1e11 {
		ts = time.UnixMilli(int64(epoch))
	} else {
		sec, frac := math.Modf(epoch)
		ts = time.Unix(int64(sec), int64(frac*1e9))
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var ErrInvalidInput = errors.New("invalid input")

// RawEvent is a payload as received from the stream. It is either a
// StringPayload or a RecordPayload; no other implementations exist.
type RawEvent interface {
	rawEvent()
}

// StringPayload is a message body that decoded to a bare JSON string.
type StringPayload string

// RecordPayload is a message body that decoded to a JSON object. Numbers are
// kept as json.Number so identities like 1234 survive unchanged.
type RecordPayload map[string]any

func (StringPayload) rawEvent() {}
func (RecordPayload) rawEvent() {}

// DecodeRawEvent parses a JSON message body. A null body becomes an empty
// record; numbers, booleans and arrays are kept as their JSON text.
func DecodeRawEvent(data []byte) (RawEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidInput)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after json value", ErrInvalidInput)
	}
	switch v := value.(type) {
	case string:
		return StringPayload(v), nil
	case map[string]any:
		return RecordPayload(v), nil
	case nil:
		return RecordPayload{}, nil
	default:
		return StringPayload(string(trimmed)), nil
	}
}

func encodeRawEvent(raw RawEvent) (json.RawMessage, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case StringPayload:
		return json.Marshal(string(v))
	case RecordPayload:
		if v == nil {
			return json.RawMessage("{}"), nil
		}
		return json.Marshal(map[string]any(v))
	default:
		return nil, fmt.Errorf("%w: unsupported raw event %T", ErrInvalidInput, raw)
	}
}

func decodeStoredRaw(data json.RawMessage) (RawEvent, error) {
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return nil, nil
	}
	return DecodeRawEvent(data)
}

// NormalizedEvent is the canonical shape every raw event is mapped onto.
type NormalizedEvent struct {
	ID        string
	Type      string
	Message   string
	Recipient string
	Timestamp string
	Raw       RawEvent
}

// Time parses Timestamp. Entries whose timestamp does not parse sort as oldest.
func (e NormalizedEvent) Time() (time.Time, bool) {
	return ParseTimestamp(e.Timestamp)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

type wireEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Recipient string          `json:"recipient,omitempty"`
	Timestamp string          `json:"timestamp"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

type wireNotification struct {
	wireEvent
	Read bool `json:"read"`
}

func (e NormalizedEvent) toWire() (wireEvent, error) {
	raw, err := encodeRawEvent(e.Raw)
	if err != nil {
		return wireEvent{}, err
	}
	return wireEvent{
		ID:        e.ID,
		Type:      e.Type,
		Message:   e.Message,
		Recipient: e.Recipient,
		Timestamp: e.Timestamp,
		Raw:       raw,
	}, nil
}

func (w wireEvent) toEvent() (NormalizedEvent, error) {
	raw, err := decodeStoredRaw(w.Raw)
	if err != nil {
		return NormalizedEvent{}, err
	}
	return NormalizedEvent{
		ID:        w.ID,
		Type:      w.Type,
		Message:   w.Message,
		Recipient: w.Recipient,
		Timestamp: w.Timestamp,
		Raw:       raw,
	}, nil
}

func (e NormalizedEvent) MarshalJSON() ([]byte, error) {
	w, err := e.toWire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (e *NormalizedEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := w.toEvent()
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}

// StoredNotification is a NormalizedEvent plus the user-owned read flag.
type StoredNotification struct {
	NormalizedEvent
	Read bool
}

func (n StoredNotification) MarshalJSON() ([]byte, error) {
	w, err := n.NormalizedEvent.toWire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireNotification{wireEvent: w, Read: n.Read})
}

func (n *StoredNotification) UnmarshalJSON(data []byte) error {
	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := w.wireEvent.toEvent()
	if err != nil {
		return err
	}
	*n = StoredNotification{NormalizedEvent: decoded, Read: w.Read}
	return nil
}

package notify

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterIDs struct{ n int }

func (c *counterIDs) NewID() string {
	c.n++
	return fmt.Sprintf("gen-%d", c.n)
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func testNormalizer() *Normalizer {
	return NewNormalizer(NormalizerOptions{IDs: &counterIDs{}, Now: fixedNow})
}

func TestDecodeRawEvent(t *testing.T) {
	raw, err := DecodeRawEvent([]byte(`{"id":"a1","n":12}`))
	require.NoError(t, err)
	record, ok := raw.(RecordPayload)
	require.True(t, ok)
	assert.Equal(t, "a1", record["id"])

	raw, err = DecodeRawEvent([]byte(`"hello"`))
	require.NoError(t, err)
	assert.Equal(t, StringPayload("hello"), raw)

	raw, err = DecodeRawEvent([]byte(`null`))
	require.NoError(t, err)
	assert.Equal(t, RecordPayload{}, raw)

	raw, err = DecodeRawEvent([]byte(` [1, 2] `))
	require.NoError(t, err)
	assert.Equal(t, StringPayload("[1, 2]"), raw)
}

func TestDecodeRawEvent_Rejects(t *testing.T) {
	for _, body := range []string{"", "   ", "{not json", `{"a":1} trailing`} {
		_, err := DecodeRawEvent([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestNormalize_FullRecord(t *testing.T) {
	n := testNormalizer()
	got := n.Normalize(RecordPayload{
		"notificationId": "n-1",
		"type":           "ORDER_PLACED",
		"message":        "order 7 placed",
		"userEmail":      "ops@example.com",
		"timestamp":      "2025-01-02T03:04:05Z",
	})
	assert.Equal(t, "n-1", got.ID)
	assert.Equal(t, "ORDER_PLACED", got.Type)
	assert.Equal(t, "order 7 placed", got.Message)
	assert.Equal(t, "ops@example.com", got.Recipient)
	assert.Equal(t, "2025-01-02T03:04:05Z", got.Timestamp)
}

func TestNormalize_ProbeOrder(t *testing.T) {
	n := testNormalizer()
	got := n.Normalize(RecordPayload{
		"id":              "second",
		"notification_id": "third",
		"eventType":       "LOW_STOCK",
		"msg":             "running low",
		"to":              "buyer@example.com",
		"eventTime":       "2025-01-02T00:00:00Z",
	})
	assert.Equal(t, "second", got.ID)
	assert.Equal(t, "LOW_STOCK", got.Type)
	assert.Equal(t, "running low", got.Message)
	assert.Equal(t, "buyer@example.com", got.Recipient)
	assert.Equal(t, "2025-01-02T00:00:00Z", got.Timestamp)
}

func TestNormalize_BlankValuesFallThrough(t *testing.T) {
	n := testNormalizer()
	got := n.Normalize(RecordPayload{
		"notificationId": "  ",
		"id":             "fallback",
		"type":           "",
		"event":          map[string]any{"eventType": "PAYMENT_FAILED"},
	})
	assert.Equal(t, "fallback", got.ID)
	assert.Equal(t, "PAYMENT_FAILED", got.Type)
}

func TestNormalize_FalseAndZeroFallThrough(t *testing.T) {
	raw, err := DecodeRawEvent([]byte(`{"id":0,"notificationId":"n-7","type":false,"recipient":0,"timestamp":0}`))
	require.NoError(t, err)
	got := testNormalizer().Normalize(raw)
	assert.Equal(t, "n-7", got.ID)
	assert.Equal(t, UnknownType, got.Type)
	assert.Equal(t, "", got.Recipient)
	assert.Equal(t, fixedNow().Format(time.RFC3339Nano), got.Timestamp)

	raw, err = DecodeRawEvent([]byte(`{"id":"t1","type":true,"priority":1}`))
	require.NoError(t, err)
	assert.Equal(t, "true", testNormalizer().Normalize(raw).Type)
}

func TestNormalize_ObjectTypeIsStringified(t *testing.T) {
	n := testNormalizer()
	got := n.Normalize(RecordPayload{"id": "x", "type": map[string]any{"code": "A"}})
	assert.Equal(t, `{"code":"A"}`, got.Type)
}

func TestNormalize_MissingFieldsUseDefaults(t *testing.T) {
	n := testNormalizer()
	got := n.Normalize(RecordPayload{"status": "ok"})
	assert.Equal(t, "gen-1", got.ID)
	assert.Equal(t, UnknownType, got.Type)
	assert.Equal(t, `{"status":"ok"}`, got.Message)
	assert.Equal(t, "", got.Recipient)
	assert.Equal(t, fixedNow().Format(time.RFC3339Nano), got.Timestamp)
}

func TestNormalize_FallbackMessageIsTruncated(t *testing.T) {
	n := testNormalizer()
	got := n.Normalize(RecordPayload{"id": "big", "payload": strings.Repeat("é", 1000)})
	assert.Equal(t, fallbackMessageRunes, len([]rune(got.Message)))
}

func TestNormalize_NumericIDKeepsDigits(t *testing.T) {
	raw, err := DecodeRawEvent([]byte(`{"id": 12345678901234567, "type":"TEST"}`))
	require.NoError(t, err)
	got := testNormalizer().Normalize(raw)
	assert.Equal(t, "12345678901234567", got.ID)
}

func TestNormalize_EpochTimestamps(t *testing.T) {
	n := testNormalizer()
	millis, err := DecodeRawEvent([]byte(`{"id":"a","timestamp":1735786800000}`))
	require.NoError(t, err)
	seconds, err := DecodeRawEvent([]byte(`{"id":"b","timestamp":1735786800}`))
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02T03:00:00Z", n.Normalize(millis).Timestamp)
	assert.Equal(t, "2025-01-02T03:00:00Z", n.Normalize(seconds).Timestamp)
}

func TestNormalize_StringPayloadSynthesizesIdentity(t *testing.T) {
	n := testNormalizer()
	first := n.Normalize(StringPayload("disk almost full"))
	second := n.Normalize(StringPayload("disk almost full"))
	assert.Equal(t, UnknownType, first.Type)
	assert.Equal(t, "disk almost full", first.Message)
	assert.Equal(t, StringPayload("disk almost full"), first.Raw)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestNormalize_DoubleEncodedRecord(t *testing.T) {
	n := testNormalizer()
	raw := StringPayload(`{"notificationId":"n-9","type":"TEST","message":"hi"}`)
	got := n.Normalize(raw)
	assert.Equal(t, "n-9", got.ID)
	assert.Equal(t, "TEST", got.Type)
	assert.Equal(t, "hi", got.Message)
	assert.Equal(t, raw, got.Raw)
}

func TestNormalize_IsIdempotentForIdentifiedRecords(t *testing.T) {
	n := testNormalizer()
	raw := RecordPayload{"id": "same", "type": "INFO", "message": "m", "timestamp": "2025-01-01T00:00:00Z"}
	assert.Equal(t, n.Normalize(raw), n.Normalize(raw))
}

func TestNormalize_NilRaw(t *testing.T) {
	got := testNormalizer().Normalize(nil)
	assert.Equal(t, RecordPayload{}, got.Raw)
	assert.Equal(t, UnknownType, got.Type)
	assert.NotEmpty(t, got.ID)
}

func TestULIDSourceIsUniqueAndPrefixed(t *testing.T) {
	src := NewULIDSource()
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id := src.NewID()
		require.True(t, strings.HasPrefix(id, "n-"))
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestParseTimestamp(t *testing.T) {
	for _, value := range []string{"2025-01-02T03:04:05Z", "2025-01-02T03:04:05.123+02:00", "2025-01-02T03:04:05", "2025-01-02"} {
		_, ok := ParseTimestamp(value)
		assert.True(t, ok, value)
	}
	_, ok := ParseTimestamp("yesterday")
	assert.False(t, ok)
}

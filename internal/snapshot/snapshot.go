package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/supplychain/notifyconsole/internal/notify"
)

// DefaultKey names the snapshot inside shared backends (postgres row,
// redis key, dynamodb item, s3 object).
const DefaultKey = "ui_notifications_v1"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotImplemented  = errors.New("not implemented")
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// Backend persists the whole notification collection as one document.
// Load returns nil, nil when nothing has been saved yet.
type Backend interface {
	Load() ([]notify.StoredNotification, error)
	Save(items []notify.StoredNotification) error
}

// Encode renders items as the persisted JSON array.
func Encode(items []notify.StoredNotification) ([]byte, error) {
	if items == nil {
		items = []notify.StoredNotification{}
	}
	return json.Marshal(items)
}

// Decode validates and parses a persisted document. Any structural problem
// is reported as ErrCorruptSnapshot.
func Decode(data []byte) ([]notify.StoredNotification, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if err := validateDocument(trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	var items []notify.StoredNotification
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return items, nil
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return DefaultKey
	}
	return key
}

// Close releases backend resources when the backend holds any.
func Close(b Backend) error {
	if closer, ok := b.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

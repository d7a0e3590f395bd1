package snapshot

import (
	"sync"

	"github.com/supplychain/notifyconsole/internal/notify"
)

// MemoryBackend keeps the encoded document in process. Round-tripping
// through the codec keeps callers from sharing slices with the backend.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load() ([]notify.StoredNotification, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	data := b.data
	b.mu.Unlock()
	if data == nil {
		return nil, nil
	}
	return Decode(data)
}

func (b *MemoryBackend) Save(items []notify.StoredNotification) error {
	if b == nil {
		return nil
	}
	data, err := Encode(items)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = data
	return nil
}

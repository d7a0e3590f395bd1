package notify

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDSource synthesizes identities for events that carry none.
type IDSource interface {
	NewID() string
}

// ulidSource issues "n-" prefixed ULIDs. Monotonic entropy keeps ids unique
// and ordered even when many are minted within the same millisecond.
type ulidSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewULIDSource() IDSource {
	return &ulidSource{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (s *ulidSource) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "n-" + ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

package notify

import (
	"sync"
	"time"
)

const DefaultHighlightWindow = 2800 * time.Millisecond

// Highlights tracks recently inserted ids with an expiry each. Expired
// entries are dropped lazily on read and swept whenever new ids are marked.
type Highlights struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	expiry map[string]time.Time
}

func NewHighlights(window time.Duration, now func() time.Time) *Highlights {
	if window <= 0 {
		window = DefaultHighlightWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Highlights{window: window, now: now, expiry: map[string]time.Time{}}
}

func (h *Highlights) Mark(ids ...string) {
	if len(ids) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	h.sweepLocked(now)
	until := now.Add(h.window)
	for _, id := range ids {
		h.expiry[id] = until
	}
}

func (h *Highlights) Active(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	until, ok := h.expiry[id]
	if !ok {
		return false
	}
	if !h.now().Before(until) {
		delete(h.expiry, id)
		return false
	}
	return true
}

func (h *Highlights) Forget(ids ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		delete(h.expiry, id)
	}
}

func (h *Highlights) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expiry = map[string]time.Time{}
}

// Sweep drops every expired entry and reports how many remain.
func (h *Highlights) Sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sweepLocked(h.now())
	return len(h.expiry)
}

func (h *Highlights) sweepLocked(now time.Time) {
	for id, until := range h.expiry {
		if !now.Before(until) {
			delete(h.expiry, id)
		}
	}
}

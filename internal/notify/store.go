package notify

import (
	"strings"
	"sync"
	"time"
)

// Persistence is the durable snapshot the store is seeded from and writes
// through to after every change.
type Persistence interface {
	Load() ([]StoredNotification, error)
	Save(items []StoredNotification) error
}

type Logger interface {
	Printf(format string, args ...any)
}

// Observer receives store-level counters. All methods must be cheap.
type Observer interface {
	ObserveMerge(inserted, updated, evicted int)
	ObserveStored(size int)
	ObservePersistFailure()
}

type StoreOptions struct {
	Persistence     Persistence
	MaxStored       int
	HighlightWindow time.Duration
	Now             func() time.Time
	Logger          Logger
	Observer        Observer
}

// Store holds the reconciled notification collection. Every operation is an
// atomic read-modify-write of the collection; persistence happens after the
// change is applied and never lets an older snapshot overwrite a newer one.
// Items handed out share their Raw payloads with the store and must be
// treated as read-only.
type Store struct {
	mu      sync.Mutex
	items   []StoredNotification
	version uint64

	saveMu       sync.Mutex
	savedVersion uint64

	persistence Persistence
	maxStored   int
	highlights  *Highlights
	logger      Logger
	observer    Observer
}

func NewStore(opts StoreOptions) *Store {
	maxStored := opts.MaxStored
	if maxStored <= 0 {
		maxStored = DefaultMaxStored
	}
	s := &Store{
		persistence: opts.Persistence,
		maxStored:   maxStored,
		highlights:  NewHighlights(opts.HighlightWindow, opts.Now),
		logger:      opts.Logger,
		observer:    opts.Observer,
	}
	s.seed()
	return s
}

func (s *Store) seed() {
	if s.persistence == nil {
		return
	}
	loaded, err := s.persistence.Load()
	if err != nil {
		s.logf("notification snapshot unreadable, starting empty: %v", err)
		return
	}
	seen := make(map[string]struct{}, len(loaded))
	items := make([]StoredNotification, 0, len(loaded))
	for _, item := range loaded {
		if strings.TrimSpace(item.ID) == "" {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}
	s.items, _ = SortAndBound(items, s.maxStored)
	s.observeStored(len(s.items))
}

// Ingest merges events into the collection and returns the ids that were
// inserted for the first time. Those ids are highlighted for the configured
// window.
func (s *Store) Ingest(events ...NormalizedEvent) []string {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	result := Merge(s.items, events, s.maxStored)
	s.items = result.Items
	s.version++
	snapshot, version := s.snapshotLocked(), s.version
	s.mu.Unlock()

	s.highlights.Forget(result.Evicted...)
	s.highlights.Mark(result.Inserted...)
	if s.observer != nil {
		s.observer.ObserveMerge(len(result.Inserted), len(result.Updated), len(result.Evicted))
	}
	s.observeStored(len(snapshot))
	s.persist(snapshot, version)
	return result.Inserted
}

// SetRead sets the read flag of one entry. It reports false when the id is
// not present, in which case nothing changes.
func (s *Store) SetRead(id string, read bool) (StoredNotification, bool) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return StoredNotification{}, false
	}
	if s.items[i].Read == read {
		item := s.items[i]
		s.mu.Unlock()
		return item, true
	}
	next := make([]StoredNotification, len(s.items))
	copy(next, s.items)
	next[i].Read = read
	s.items = next
	s.version++
	item := next[i]
	snapshot, version := s.snapshotLocked(), s.version
	s.mu.Unlock()

	s.persist(snapshot, version)
	return item, true
}

// Open returns one entry and marks it read, mirroring a detail view.
func (s *Store) Open(id string) (StoredNotification, bool) {
	return s.SetRead(id, true)
}

func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	next := make([]StoredNotification, 0, len(s.items)-1)
	next = append(next, s.items[:i]...)
	next = append(next, s.items[i+1:]...)
	s.items = next
	s.version++
	snapshot, version := s.snapshotLocked(), s.version
	s.mu.Unlock()

	s.highlights.Forget(id)
	s.observeStored(len(snapshot))
	s.persist(snapshot, version)
	return true
}

func (s *Store) ClearAll() {
	s.mu.Lock()
	s.items = nil
	s.version++
	version := s.version
	s.mu.Unlock()

	s.highlights.Reset()
	s.observeStored(0)
	s.persist([]StoredNotification{}, version)
}

func (s *Store) Get(id string) (StoredNotification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return StoredNotification{}, false
	}
	return s.items[i], true
}

// Items returns the collection newest-first.
func (s *Store) Items() []StoredNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) IsHighlighted(id string) bool {
	return s.highlights.Active(id)
}

// View projects the current collection through q.
func (s *Store) View(q Query) View {
	return Project(s.Items(), q, s.highlights.Active)
}

func (s *Store) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []StoredNotification {
	out := make([]StoredNotification, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) persist(items []StoredNotification, version uint64) {
	if s.persistence == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if version <= s.savedVersion {
		return
	}
	if err := s.persistence.Save(items); err != nil {
		s.logf("persist notification snapshot failed: %v", err)
		if s.observer != nil {
			s.observer.ObservePersistFailure()
		}
		return
	}
	s.savedVersion = version
}

func (s *Store) observeStored(size int) {
	if s.observer != nil {
		s.observer.ObserveStored(size)
	}
}

func (s *Store) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

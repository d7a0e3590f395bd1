package stream

import "sync"

// Relay republishes events that have already been merged into the store.
// Pipe publishes to it after each ingest, so a subscriber that reacts to
// an event by reading the store always finds it there.
type Relay struct {
	observer Observer

	mu          sync.Mutex
	closed      bool
	subscribers map[int]chan Event
	nextSubID   int
}

// NewRelay returns an open relay. observer may be nil; when set it counts
// events dropped for slow subscribers.
func NewRelay(observer Observer) *Relay {
	return &Relay{observer: observer, subscribers: map[int]chan Event{}}
}

// Subscribe registers a buffered channel. The returned func unsubscribes
// and is safe to call more than once. Subscribing to a closed relay
// yields an already-closed channel.
func (r *Relay) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if existing, ok := r.subscribers[id]; ok {
				close(existing)
				delete(r.subscribers, id)
			}
		})
	}
}

// Publish hands events to every subscriber without blocking. A full
// subscriber misses the event.
func (r *Relay) Publish(events ...Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, ev := range events {
		for _, ch := range r.subscribers {
			select {
			case ch <- ev:
			default:
				if r.observer != nil {
					r.observer.ObserveDrop()
				}
			}
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, id)
	}
}

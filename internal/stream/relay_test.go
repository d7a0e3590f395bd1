package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supplychain/notifyconsole/internal/notify"
)

func TestRelay_FansOutAndCountsDrops(t *testing.T) {
	obs := &counters{}
	relay := NewRelay(obs)
	fast, cancelFast := relay.Subscribe(4)
	defer cancelFast()
	slow, cancelSlow := relay.Subscribe(1)
	defer cancelSlow()

	relay.Publish(
		Event{Normalized: notify.NormalizedEvent{ID: "a"}},
		Event{Normalized: notify.NormalizedEvent{ID: "b"}},
	)

	assert.Equal(t, "a", receive(t, fast).Normalized.ID)
	assert.Equal(t, "b", receive(t, fast).Normalized.ID)
	assert.Equal(t, "a", receive(t, slow).Normalized.ID)
	assert.Equal(t, int64(1), obs.drops.Load())
}

func TestRelay_UnsubscribeAndClose(t *testing.T) {
	relay := NewRelay(nil)
	events, cancel := relay.Subscribe(1)
	cancel()
	cancel()
	_, ok := <-events
	assert.False(t, ok, "expected closed channel after unsubscribe")

	open, _ := relay.Subscribe(1)
	relay.Close()
	relay.Close()
	_, ok = <-open
	assert.False(t, ok, "expected closed channel after relay close")

	late, _ := relay.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok, "expected closed channel when subscribing to a closed relay")
	relay.Publish(Event{})
}

func TestPipe_RelaysAfterIngest(t *testing.T) {
	store := notify.NewStore(notify.StoreOptions{})
	relay := NewRelay(nil)
	live, cancel := relay.Subscribe(8)
	defer cancel()

	events := make(chan Event, 2)
	events <- Event{Normalized: notify.NormalizedEvent{ID: "r1", Type: "TEST", Timestamp: "2025-01-01T00:00:00Z"}}
	events <- Event{Normalized: notify.NormalizedEvent{ID: "r2", Type: "TEST", Timestamp: "2025-01-01T00:01:00Z"}}
	close(events)

	done := make(chan struct{})
	go func() {
		Pipe(context.Background(), events, store, relay)
		close(done)
	}()

	for _, want := range []string{"r1", "r2"} {
		ev := receive(t, live)
		require.Equal(t, want, ev.Normalized.ID)
		_, stored := store.Get(ev.Normalized.ID)
		assert.True(t, stored, "relayed %s before it was stored", want)
		assert.True(t, store.IsHighlighted(ev.Normalized.ID))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("pipe did not return after the channel closed")
	}
}

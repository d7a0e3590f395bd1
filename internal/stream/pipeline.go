package stream

import (
	"context"

	"github.com/supplychain/notifyconsole/internal/notify"
)

const pipeBatch = 64

// Ingester is the sink Pipe feeds; *notify.Store satisfies it.
type Ingester interface {
	Ingest(events ...notify.NormalizedEvent) []string
}

// Pipe drains events into sink until the channel closes or ctx is done.
// Events already buffered are merged together so a burst costs one
// persistence write. When relay is non-nil each batch is republished on it
// once the sink has returned.
func Pipe(ctx context.Context, events <-chan Event, sink Ingester, relay *Relay) {
	batch := make([]Event, 0, pipeBatch)
	normalized := make([]notify.NormalizedEvent, 0, pipeBatch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			batch = append(batch[:0], ev)
			open := true
		drain:
			for len(batch) < pipeBatch {
				select {
				case next, more := <-events:
					if !more {
						open = false
						break drain
					}
					batch = append(batch, next)
				default:
					break drain
				}
			}
			normalized = normalized[:0]
			for _, item := range batch {
				normalized = append(normalized, item.Normalized)
			}
			sink.Ingest(normalized...)
			if relay != nil {
				relay.Publish(batch...)
			}
			if !open {
				return
			}
		}
	}
}
